package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/common/log"
	"github.com/jabberwocky238/netstream/config"
	"github.com/jabberwocky238/netstream/socket"
)

func main() {
	// 命令行参数
	var configPath = flag.String("f", "", "配置文件路径")
	var listen = flag.Bool("l", false, "监听模式，接受一个连接")
	var datagram = flag.Bool("u", false, "使用 UDP")
	var insecure = flag.Bool("k", false, "不校验 TLS 证书")
	var level = flag.String("log", "", "日志级别 (debug, info, warn, error)")
	var help = flag.Bool("help", false, "显示帮助信息")
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg := new(config.Config)
	if *configPath != "" {
		var err error
		cfg, err = config.ParseConfig(*configPath)
		if err != nil {
			log.Errorf("解析配置文件失败: %v", err)
			os.Exit(1)
		}
	}
	// 命令行优先于配置文件
	if flag.NArg() > 0 {
		cfg.Socket.Target = flag.Arg(0)
	}
	if *listen {
		cfg.Socket.Server = true
	}
	if *datagram {
		cfg.Socket.Protocol = "udp"
	}
	if *insecure {
		cfg.TLS.InsecureSkipVerify = true
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if cfg.Log.Level != "" {
		log.SetLogLevel(log.ParseLevel(cfg.Log.Level))
	}
	if cfg.Socket.Target == "" {
		fmt.Fprintln(os.Stderr, "错误：未指定目标地址")
		showHelp()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	opts, err := cfg.SocketOptions()
	if err != nil {
		return err
	}
	s := socket.New(opts...)
	if err := s.OpenContext(ctx, cfg.Socket.Target, cfg.Mode()); err != nil {
		return err
	}
	defer s.Close()

	conn := s
	if s.State() == socket.Listening {
		log.Infof("listening on %s", s.LocalAddr())
		conn, err = s.Listen()
		if err != nil {
			return err
		}
		defer conn.Close()
		s.Close()
	}
	log.Infof("connected %s (%s)", conn.Display(), conn.State())

	input := make(chan []byte)
	go readInput(os.Stdin, input)
	err = newSession(conn, cfg.Socket.BufferSize).run(ctx, input)
	log.Infof("read %d bytes, wrote %d bytes", conn.Stats().BytesRead, conn.Stats().BytesWritten)
	return err
}

// readInput 把标准输入按块送进 out，结束时关闭 out
func readInput(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, socket.DefaultBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			return
		}
	}
}

// session drives one connected socket from a single goroutine: input is
// written through a StreamBuffer and reads are handed to async workers.
type session struct {
	s       *socket.Socket
	out     *socket.StreamBuffer
	buf     []byte
	arrived chan []byte
	idle    chan error
}

func newSession(s *socket.Socket, size int) *session {
	if size <= 0 {
		size = socket.DefaultBufferSize
	}
	ss := &session{
		s:       s,
		out:     socket.NewStreamBuffer(s, size),
		buf:     make([]byte, size),
		arrived: make(chan []byte, 1),
		idle:    make(chan error, 1),
	}
	s.SetAsync(true)
	s.RegisterCallback(func(n int, data []byte) { ss.arrived <- data })
	return ss
}

// arm prints what is already pending and leaves one read with a worker.
func (ss *session) arm(ctx context.Context) error {
	for {
		n, err := ss.s.Read(ss.buf)
		if errors.Is(err, socket.ErrPending) {
			go func() { ss.idle <- ss.s.Drain(ctx) }()
			return nil
		}
		if err != nil {
			return err
		}
		os.Stdout.Write(ss.buf[:n])
	}
}

func (ss *session) run(ctx context.Context, input <-chan []byte) error {
	if err := ss.arm(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			ss.s.Abort()
			return ctx.Err()

		case chunk, ok := <-input:
			if !ok {
				// stdin closed; keep printing until the peer is done
				input = nil
				continue
			}
			if _, err := ss.out.Write(chunk); err != nil {
				return err
			}
			if err := ss.out.Sync(); err != nil {
				return err
			}

		case err := <-ss.idle:
			if err != nil {
				return err
			}
			select {
			case data := <-ss.arrived:
				os.Stdout.Write(data)
			default:
				// the worker read nothing: the peer closed
				return nil
			}
			if err := ss.arm(ctx); err != nil {
				return err
			}
		}
	}
}

// showHelp 显示帮助信息
func showHelp() {
	fmt.Println("netstream: 基于 socket 包的 netcat")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Printf("  %s [-f <配置文件>] [-l] [-u] [-k] [-log <级别>] <目标>\n", os.Args[0])
	fmt.Println()
	fmt.Println("目标格式: [scheme://]host[:port]，\":port\" 表示在所有地址上监听")
	fmt.Println()
	fmt.Println("参数:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("示例:")
	fmt.Printf("  %s -l :9000                 # 接受一个 TCP 连接\n", os.Args[0])
	fmt.Printf("  %s localhost:9000           # 连接\n", os.Args[0])
	fmt.Printf("  %s -u -l 127.0.0.1:5300     # 绑定 UDP\n", os.Args[0])
	fmt.Printf("  %s https://example.com      # 443 端口走 TLS\n", os.Args[0])
}

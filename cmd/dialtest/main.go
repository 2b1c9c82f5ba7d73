package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jabberwocky238/netstream/socket"
	"github.com/jabberwocky238/netstream/transport/address"

	"github.com/jpillora/backoff"
)

func main() {
	var target = flag.String("t", "127.0.0.1:47789", "目标 [scheme://]host:port")
	var timeout = flag.Int("timeout", 3, "连接超时时间(秒)")
	var retries = flag.Int("r", 3, "重试次数")
	var datagram = flag.Bool("u", false, "使用 UDP")
	var dns = flag.String("dns", "", "DNS 服务器，留空使用系统解析")
	flag.Parse()

	var opts []socket.Option
	if *datagram {
		opts = append(opts, socket.WithProtocol(socket.Datagram))
	}
	if *dns != "" {
		opts = append(opts, socket.WithResolver(address.NewResolver(*dns)))
	}

	fmt.Printf("测试连接到: %s\n", *target)
	fmt.Printf("超时时间: %d秒, 重试次数: %d\n\n", *timeout, *retries)

	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}
	for i := 0; i < *retries; i++ {
		fmt.Printf("尝试连接 %d/%d...\n", i+1, *retries)

		s := socket.New(opts...)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
		start := time.Now()
		err := s.OpenContext(ctx, *target, socket.ModeReadWrite)
		cancel()
		duration := time.Since(start)

		if err != nil {
			fmt.Printf("连接失败: %v (耗时: %v)\n", err, duration)
			if i < *retries-1 {
				wait := b.Duration()
				fmt.Printf("等待%v后重试...\n\n", wait)
				time.Sleep(wait)
			}
			continue
		}

		fmt.Printf("连接成功! (耗时: %v, 状态: %s)\n", duration, s.State())
		fmt.Printf("本地地址: %s\n", s.LocalAddr())
		fmt.Printf("远程地址: %s\n", s.Display())

		// 发送测试数据
		if _, err := s.WriteString("Hello Server!\n"); err != nil {
			fmt.Printf("发送数据失败: %v\n", err)
		} else {
			fmt.Println("发送测试数据: Hello Server!")
		}

		// 尝试读取响应，超时后中断
		timer := time.AfterFunc(5*time.Second, func() { s.Abort() })
		buffer := make([]byte, 1024)
		n, err := s.Read(buffer)
		timer.Stop()
		if err != nil {
			fmt.Printf("读取响应失败: %v\n", err)
		} else {
			fmt.Printf("收到响应: %s\n", string(buffer[:n]))
		}

		s.Close()
		fmt.Println("连接已关闭")
		return
	}

	fmt.Printf("所有重试都失败了\n")
}

package config

// Log 日志配置
type Log struct {
	Level string `toml:"Level"`
}

// Socket 连接配置
type Socket struct {
	// "tcp" (default) or "udp"
	Protocol string `toml:"Protocol"`
	Target   string `toml:"Target"`
	// Server forces the server path even for a concrete address.
	Server     bool `toml:"Server"`
	Async      bool `toml:"Async"`
	Backlog    int  `toml:"Backlog"`
	BufferSize int  `toml:"BufferSize"`
	MaxWorkers int  `toml:"MaxWorkers"`
	// 单条 IPC 记录上限，0 使用默认值
	MaxRecordSize int      `toml:"MaxRecordSize"`
	TLSPorts      []int    `toml:"TLSPorts"`
	AllowedPeers  []string `toml:"AllowedPeers"`
	DNSServers    []string `toml:"DNSServers"`
}

// TLS 客户端 TLS 配置
type TLS struct {
	ServerName         string `toml:"ServerName"`
	CertFile           string `toml:"CertFile"`
	KeyFile            string `toml:"KeyFile"`
	KeyPEM             string `toml:"KeyPEM"`
	Password           string `toml:"Password"`
	CAFile             string `toml:"CAFile"`
	CADir              string `toml:"CADir"`
	InsecureSkipVerify bool   `toml:"InsecureSkipVerify"`
}

// Config 主配置结构体
type Config struct {
	Log    Log    `toml:"Log"`
	Socket Socket `toml:"Socket"`
	TLS    TLS    `toml:"TLS"`
}

package constants

import "time"

// 队列相关常量
const (
	SubmissionQueueKey = "submission_queue" // 提交队列的 Redis 键名
)

// 评测相关常量
const (
	// 默认资源限制
	DefaultCPUTimeLimitSeconds = 2   // 默认 CPU 时间限制（秒）
	DefaultMemoryLimitMB       = 256 // 默认内存限制（MB）
	DefaultFDLimit             = 64  // 默认文件描述符限制
	DefaultProcessLimit        = 1   // 默认子进程数限制

	// 资源限制范围
	MinCPUTimeLimitSeconds = 1
	MaxCPUTimeLimitSeconds = 60
	MinMemoryLimitMB       = 16
	MaxMemoryLimitMB       = 4096

	// 编译超时配置
	MaxCompileTimeout = 30 * time.Second // 编译超时时间

	// 输出限制
	MaxOutputBytes = 10 * 1024 * 1024 // 沙箱捕获输出的最大字节数

	// 临时文件
	TempDirPerm  = 0700 // 工作目录权限
	CodeFilePerm = 0600 // 源码文件权限

	SourceFileSuffix = ".cpp"
)

// 缓存相关常量
const (
	DefaultCacheDirName      = "codejudge-cache"
	DefaultCacheTTLSeconds   = 1800
	DefaultMaxCacheDiskUsage = 2 * 1024 * 1024 * 1024 // 2GB
	CacheDirPerm             = 0755
)

// 编译器相关常量
const (
	DefaultGPPPath  = "g++"
	GPPCompileFlags = "-std=c++17 -O2"
)

// 操作面 HTTP 相关常量
const (
	DefaultMetricsAddr = ":8090"
)

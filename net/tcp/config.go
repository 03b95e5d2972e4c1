package tcp

import "time"

// Config is the file form of the server options.
type Config struct {
	KeepAlivePeriod   time.Duration `mapstructure:"keep_alive_period" validate:"gte=0"`
	NoDelay           bool          `mapstructure:"no_delay"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	ReadSize          int           `mapstructure:"read_size" validate:"gt=0"`
	MaxReadSize       int           `mapstructure:"max_read_size" validate:"omitempty,gtefield=ReadSize"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	MaxConnNum        int           `mapstructure:"max_conn_num" validate:"gte=0"`
	MaxReadsPerSecond int           `mapstructure:"max_reads_per_second" validate:"gte=0"`
	AutoEnd           bool          `mapstructure:"auto_end"`
}

// DefaultConfig mirrors the defaults of NewServer. Decode files over it so
// omitted keys keep their default.
func DefaultConfig() Config {
	o := defaultOptions()
	return Config{
		KeepAlivePeriod:   o.keepAlivePeriod,
		NoDelay:           o.noDelay,
		ReadTimeout:       o.readTimeout,
		ReadSize:          o.readSize,
		MaxReadSize:       o.maxReadSize,
		ShutdownTimeout:   o.shutdownTimeout,
		MaxConnNum:        o.maxConnNum,
		MaxReadsPerSecond: o.maxReadsPerSecond,
		AutoEnd:           o.autoEnd,
	}
}

func (c Config) Options() []Option {
	return []Option{
		WithKeepAlivePeriod(c.KeepAlivePeriod),
		WithNoDelay(c.NoDelay),
		WithReadTimeout(c.ReadTimeout),
		WithReadSize(c.ReadSize),
		WithMaxReadSize(c.MaxReadSize),
		WithShutdownTimeout(c.ShutdownTimeout),
		WithMaxConnNum(c.MaxConnNum),
		WithMaxReadsPerSecond(c.MaxReadsPerSecond),
		WithAutoEnd(c.AutoEnd),
	}
}

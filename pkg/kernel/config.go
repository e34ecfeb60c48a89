package kernel

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config collects the scheduler's tunable constants. LoadConfig reads
// an alternate tuning (e.g. a smaller NPROC) from a TOML file; the
// hybridosctl CLI uses DefaultConfig, and tests adjust DefaultConfig's
// fields directly.
type Config struct {
	// NProc is the size of the fixed task pool.
	NProc int `toml:"nproc"`
	// Reserve is the minimum tickets the MLFQ pool must always retain.
	Reserve int `toml:"reserve"`
	// QSize is the number of MLFQ priority levels.
	QSize int `toml:"qsize"`
	// DTQ is the inter-thread micro-quantum, in ticks.
	DTQ int `toml:"dtq"`
	// BoostPeriod is the number of MLFQ ticks between priority boosts.
	BoostPeriod int `toml:"boost_period"`
	// LargeNum is the stride numerator.
	LargeNum int `toml:"large_num"`
	// Barrier is the pass-value overflow threshold.
	Barrier int `toml:"barrier"`
	// MaxInt bounds pass values (the MAXINT sentinel).
	MaxInt int `toml:"max_int"`
	// XemQSZ is the counting semaphore's waiter queue depth.
	XemQSZ int `toml:"xem_qsz"`
	// TQ is the per-level MLFQ time quantum, indexed by level.
	TQ []int `toml:"tq"`
	// TA is the per-level MLFQ promotion threshold, indexed by level.
	// The last level never demotes further and its TA entry is ignored.
	TA []int `toml:"ta"`
}

// DefaultConfig returns the scheduler's baseline tuning.
func DefaultConfig() Config {
	return Config{
		NProc:       64,
		Reserve:     20,
		QSize:       3,
		DTQ:         5,
		BoostPeriod: 100,
		LargeNum:    1000,
		Barrier:     0x6FFFFFFF,
		MaxInt:      0x7FFFFFFF,
		XemQSZ:      64,
		TQ:          []int{1, 2, 4},
		TA:          []int{5, 10, 0},
	}
}

// LoadConfig reads a TOML config file, starting from DefaultConfig and
// overriding only the fields present in the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.QSize < 2 {
		return fmt.Errorf("qsize must be >= 2, got %d", c.QSize)
	}
	if len(c.TQ) != c.QSize || len(c.TA) != c.QSize {
		return fmt.Errorf("tq/ta must each have qsize=%d entries", c.QSize)
	}
	if c.Reserve < 0 || c.Reserve > 100 {
		return fmt.Errorf("reserve out of range: %d", c.Reserve)
	}
	if c.NProc < 1 {
		return fmt.Errorf("nproc must be positive, got %d", c.NProc)
	}
	return nil
}

// baseLevel is the lowest-priority (highest-index) MLFQ level, which
// never demotes further.
func (c Config) baseLevel() int { return c.QSize - 1 }

// stride returns LARGENUM/tickets, the per-quantum stride for a
// participant holding the given ticket count.
func (c Config) stride(tickets int) int {
	if tickets <= 0 {
		return c.LargeNum
	}
	return c.LargeNum / tickets
}

package kernel

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().validate(); err != nil {
		t.Fatalf("DefaultConfig() must validate, got %v", err)
	}
}

func TestConfigValidateRejectsMismatchedLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QSize = 3
	cfg.TQ = []int{1, 2}
	if err := cfg.validate(); err == nil {
		t.Fatalf("validate() with len(TQ) != QSize must fail")
	}
}

func TestConfigValidateRejectsSmallQSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QSize = 1
	cfg.TQ = []int{1}
	cfg.TA = []int{0}
	if err := cfg.validate(); err == nil {
		t.Fatalf("validate() with qsize < 2 must fail")
	}
}

func TestConfigValidateRejectsOutOfRangeReserve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reserve = 150
	if err := cfg.validate(); err == nil {
		t.Fatalf("validate() with reserve > 100 must fail")
	}
}

func TestBaseLevel(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.baseLevel(), cfg.QSize-1; got != want {
		t.Fatalf("baseLevel() = %d, want %d", got, want)
	}
}

func TestStrideZeroTicketsReturnsLargeNum(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.stride(0); got != cfg.LargeNum {
		t.Fatalf("stride(0) = %d, want %d", got, cfg.LargeNum)
	}
}

func TestStrideDividesLargeNum(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.stride(10), cfg.LargeNum/10; got != want {
		t.Fatalf("stride(10) = %d, want %d", got, want)
	}
}

package sinks_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/sinks"
	"github.com/pratik-mahalle/secwatch/internal/testutil"
)

func TestHostRange(t *testing.T) {
	tests := []struct {
		ip      string
		want    string
		wantErr bool
	}{
		{"203.0.113.7", "203.0.113.7/32", false},
		{"2001:db8::1", "2001:db8::1/128", false},
		{"::ffff:10.0.0.1", "10.0.0.1/32", false},
		{"not-an-ip", "", true},
		{"", "", true},
		{"10.0.0.0/8", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got, err := sinks.HostRange(tt.ip)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HostRange(%q) error = %v, wantErr %v", tt.ip, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("HostRange(%q) = %q, want %q", tt.ip, got, tt.want)
			}
		})
	}
}

func newMitigateSink(t *testing.T, fw sinks.FirewallClient) *sinks.MitigateSink {
	t.Helper()
	s := sinks.NewMitigateSink(fw, "blocked-ips", logger.New(logger.Config{Level: "error", Format: "json"}))
	t.Cleanup(s.Close)
	return s
}

func bruteForce(t *testing.T, ip string) *alert.Record {
	return newRecord(t, alert.NameFailedLoginAttempt, "critical", alert.WithSourceIP(ip))
}

func TestMitigateSink_Block(t *testing.T) {
	fw := testutil.NewMockFirewall("blocked-ips", "198.51.100.1/32")
	s := newMitigateSink(t, fw)

	if err := s.Deliver(context.Background(), bruteForce(t, "203.0.113.7")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	want := []string{"198.51.100.1/32", "203.0.113.7/32"}
	if got := fw.Ranges("blocked-ips"); !reflect.DeepEqual(got, want) {
		t.Errorf("ranges = %v, want %v", got, want)
	}
}

func TestMitigateSink_AlreadyBlocked(t *testing.T) {
	fw := testutil.NewMockFirewall("blocked-ips", "203.0.113.7/32")
	s := newMitigateSink(t, fw)

	if err := s.Deliver(context.Background(), bruteForce(t, "203.0.113.7")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if gets, replaces := fw.Counts(); gets != 1 || replaces != 0 {
		t.Errorf("gets = %d, replaces = %d, want 1 and 0", gets, replaces)
	}
}

func TestMitigateSink_IPv6(t *testing.T) {
	fw := testutil.NewMockFirewall("blocked-ips")
	s := newMitigateSink(t, fw)

	if err := s.Deliver(context.Background(), bruteForce(t, "2001:db8::1")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := fw.Ranges("blocked-ips"); !reflect.DeepEqual(got, []string{"2001:db8::1/128"}) {
		t.Errorf("ranges = %v", got)
	}
}

func TestMitigateSink_Errors(t *testing.T) {
	t.Run("invalid ip", func(t *testing.T) {
		fw := testutil.NewMockFirewall("blocked-ips")
		s := newMitigateSink(t, fw)
		err := s.Deliver(context.Background(), bruteForce(t, "garbage"))
		if !errors.HasCode(err, errors.ErrCodeSinkTransport) {
			t.Errorf("Deliver() error = %v", err)
		}
		if gets, _ := fw.Counts(); gets != 0 {
			t.Error("firewall read for an invalid ip")
		}
	})

	t.Run("missing rule", func(t *testing.T) {
		s := newMitigateSink(t, testutil.NewMockFirewall("other-rule"))
		if err := s.Deliver(context.Background(), bruteForce(t, "203.0.113.7")); err == nil {
			t.Error("expected error for missing rule")
		}
	})

	t.Run("replace failure", func(t *testing.T) {
		fw := testutil.NewMockFirewall("blocked-ips")
		fw.ReplaceError = fmt.Errorf("403 forbidden")
		s := newMitigateSink(t, fw)
		if err := s.Deliver(context.Background(), bruteForce(t, "203.0.113.7")); err == nil {
			t.Error("expected error when the patch fails")
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := sinks.NewMitigateSink(testutil.NewMockFirewall("blocked-ips"), "", logger.New(logger.Config{Level: "error"}))
		s.Close()
		s.Close()
		if err := s.Deliver(context.Background(), bruteForce(t, "203.0.113.7")); err == nil {
			t.Error("expected error after Close")
		}
	})
}

func TestMitigateSink_ConcurrentBlocksAllRetained(t *testing.T) {
	fw := testutil.NewMockFirewall("blocked-ips")
	fw.Latency = 2 * time.Millisecond
	s := newMitigateSink(t, fw)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Deliver(context.Background(), bruteForce(t, fmt.Sprintf("203.0.113.%d", i+1)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
	}
	if got := fw.Ranges("blocked-ips"); len(got) != n {
		t.Errorf("ranges = %d (%v), want %d: concurrent blocks lost an update", len(got), got, n)
	}
}

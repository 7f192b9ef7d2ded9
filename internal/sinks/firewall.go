package sinks

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/option"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/metrics"
)

// DefaultBlockRule is the firewall rule that holds blocked source ranges
const DefaultBlockRule = "blocked-ips"

// Rule is the part of a firewall rule the mitigation sink manages
type Rule struct {
	Name         string
	SourceRanges []string
}

// FirewallClient reads and replaces firewall rules
type FirewallClient interface {
	GetRule(ctx context.Context, name string) (*Rule, error)
	ReplaceRule(ctx context.Context, rule *Rule) error
}

// ComputeFirewall manages rules through the Compute Engine firewall API
type ComputeFirewall struct {
	client  *compute.FirewallsClient
	project string
}

// NewComputeFirewall creates a firewall client for project
func NewComputeFirewall(ctx context.Context, project string, opts ...option.ClientOption) (*ComputeFirewall, error) {
	client, err := compute.NewFirewallsRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firewall client: %w", err)
	}
	return &ComputeFirewall{client: client, project: project}, nil
}

// GetRule implements FirewallClient
func (f *ComputeFirewall) GetRule(ctx context.Context, name string) (*Rule, error) {
	fw, err := f.client.Get(ctx, &computepb.GetFirewallRequest{
		Project:  f.project,
		Firewall: name,
	})
	if err != nil {
		return nil, fmt.Errorf("get firewall %s: %w", name, err)
	}
	return &Rule{Name: fw.GetName(), SourceRanges: fw.GetSourceRanges()}, nil
}

// ReplaceRule implements FirewallClient. Only the source ranges are patched;
// the rule's action, direction and targets are left as configured.
func (f *ComputeFirewall) ReplaceRule(ctx context.Context, rule *Rule) error {
	op, err := f.client.Patch(ctx, &computepb.PatchFirewallRequest{
		Project:  f.project,
		Firewall: rule.Name,
		FirewallResource: &computepb.Firewall{
			SourceRanges: rule.SourceRanges,
		},
	})
	if err != nil {
		return fmt.Errorf("patch firewall %s: %w", rule.Name, err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("wait for firewall %s patch: %w", rule.Name, err)
	}
	return nil
}

// Close releases the client
func (f *ComputeFirewall) Close() error {
	return f.client.Close()
}

// HostRange returns the single-host CIDR for ip: /32 for IPv4, /128 for IPv6
func HostRange(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("invalid source ip %q: %w", ip, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
}

type blockRequest struct {
	ctx   context.Context
	cidr  string
	alert string
	done  chan error
}

// MitigateSink blocks the alert's source IP on a firewall rule. Block
// requests go through a single goroutine so the read-modify-write of the
// rule never interleaves within this process.
type MitigateSink struct {
	fw     FirewallClient
	rule   string
	logger *logger.Logger

	queue     chan blockRequest
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMitigateSink creates the sink and starts its writer goroutine
func NewMitigateSink(fw FirewallClient, rule string, log *logger.Logger) *MitigateSink {
	if rule == "" {
		rule = DefaultBlockRule
	}
	s := &MitigateSink{
		fw:     fw,
		rule:   rule,
		logger: log,
		queue:  make(chan blockRequest, 64),
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Name implements Sink
func (s *MitigateSink) Name() alert.Sink { return alert.SinkMitigate }

// Deliver implements Sink
func (s *MitigateSink) Deliver(ctx context.Context, rec *alert.Record) error {
	cidr, err := HostRange(rec.SourceIP())
	if err != nil {
		return errors.SinkFailure(string(alert.SinkMitigate), err)
	}

	req := blockRequest{ctx: ctx, cidr: cidr, alert: rec.ID(), done: make(chan error, 1)}
	select {
	case s.queue <- req:
	case <-s.stop:
		return errors.SinkFailure(string(alert.SinkMitigate), fmt.Errorf("mitigation sink is closed"))
	case <-ctx.Done():
		return errors.SinkFailure(string(alert.SinkMitigate), ctx.Err())
	}

	select {
	case err := <-req.done:
		if err != nil {
			return errors.SinkFailure(string(alert.SinkMitigate), err)
		}
		return nil
	case <-ctx.Done():
		return errors.SinkFailure(string(alert.SinkMitigate), ctx.Err())
	}
}

// Close stops the writer goroutine after the request in progress
func (s *MitigateSink) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *MitigateSink) run() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.queue:
			req.done <- s.block(req)
		case <-s.stop:
			return
		}
	}
}

func (s *MitigateSink) block(req blockRequest) error {
	// The caller gave up while queued
	if err := req.ctx.Err(); err != nil {
		return err
	}

	rule, err := s.fw.GetRule(req.ctx, s.rule)
	if err != nil {
		return err
	}

	ranges := make([]string, 0, len(rule.SourceRanges)+1)
	for _, r := range rule.SourceRanges {
		if r == req.cidr {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": req.alert,
				"range":    req.cidr,
				"rule":     s.rule,
			}).Debug("Source range already blocked")
			return nil
		}
		ranges = append(ranges, r)
	}
	ranges = append(ranges, req.cidr)

	if err := s.fw.ReplaceRule(req.ctx, &Rule{Name: s.rule, SourceRanges: ranges}); err != nil {
		return err
	}

	metrics.RecordBlockedIP()
	s.logger.WithFields(map[string]interface{}{
		"alert_id": req.alert,
		"range":    req.cidr,
		"rule":     s.rule,
	}).Info("Blocked source range")
	return nil
}

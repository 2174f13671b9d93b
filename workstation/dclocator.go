package workstation

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

const resolvConfPath = "/etc/resolv.conf"

// DNSLocator finds domain controllers through SRV records.
type DNSLocator struct {
	client *dns.Client
	log    *slog.Logger

	// resolvers are used when no explicit server is given. Empty means the
	// system resolver.
	resolvers []string
}

func NewDNSLocator(log *slog.Logger) *DNSLocator {
	if log == nil {
		log = common.DiscardLogger()
	}
	l := &DNSLocator{
		client: &dns.Client{Timeout: 5 * time.Second},
		log:    log,
	}
	if cfg, err := dns.ClientConfigFromFile(resolvConfPath); err == nil {
		for _, s := range cfg.Servers {
			l.resolvers = append(l.resolvers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return l
}

// domainControllerRecord is the SRV name Active Directory registers for its
// domain controllers.
func domainControllerRecord(domain string) string {
	return dns.Fqdn("_ldap._tcp.dc._msdcs." + strings.TrimSuffix(domain, "."))
}

// LocateDomainControllers returns the DC host names of domain in SRV
// priority order. server optionally names the DNS server to ask.
func (l *DNSLocator) LocateDomainControllers(ctx context.Context, domain, server string) ([]string, error) {
	if server != "" {
		return l.exchange(ctx, domain, []string{withDNSPort(server)})
	}
	if len(l.resolvers) > 0 {
		return l.exchange(ctx, domain, l.resolvers)
	}
	return l.lookupSystem(ctx, domain)
}

func (l *DNSLocator) exchange(ctx context.Context, domain string, servers []string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(domainControllerRecord(domain), dns.TypeSRV)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range servers {
		in, _, err := l.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			l.log.Debug("DNS query failed", slog.String("server", server), "err", err)
			continue
		}
		if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("server %s answered %s", server, dns.RcodeToString[in.Rcode])
			continue
		}

		var records []*net.SRV
		for _, answer := range in.Answer {
			if srv, ok := answer.(*dns.SRV); ok {
				records = append(records, &net.SRV{
					Target:   srv.Target,
					Port:     srv.Port,
					Priority: srv.Priority,
					Weight:   srv.Weight,
				})
			}
		}
		return targets(domain, records)
	}
	return nil, fmt.Errorf("%w for %s: %v", interfaces.ErrNoDomainController, domain, lastErr)
}

func (l *DNSLocator) lookupSystem(ctx context.Context, domain string) ([]string, error) {
	_, records, err := net.DefaultResolver.LookupSRV(ctx, "ldap", "tcp", "dc._msdcs."+strings.TrimSuffix(domain, "."))
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", interfaces.ErrNoDomainController, domain, err)
	}
	return targets(domain, records)
}

func targets(domain string, records []*net.SRV) ([]string, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w for %s", interfaces.ErrNoDomainController, domain)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, strings.TrimSuffix(r.Target, "."))
	}
	return out, nil
}

func withDNSPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}

// DiscoverDomainControllers locates the domain controllers of domain with a
// default DNSLocator.
func DiscoverDomainControllers(ctx context.Context, domain, server string) ([]string, error) {
	return NewDNSLocator(nil).LocateDomainControllers(ctx, domain, server)
}

package workstation

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// startDNSServer serves SRV answers for the names in zone and NXDOMAIN for
// everything else.
func startDNSServer(t *testing.T, zone map[string][]dns.RR) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		answers, ok := zone[req.Question[0].Name]
		if !ok {
			resp.Rcode = dns.RcodeNameError
		}
		resp.Answer = answers
		_ = w.WriteMsg(resp)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func srvRecord(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func TestDNSLocator_LocateDomainControllers(t *testing.T) {
	name := "_ldap._tcp.dc._msdcs.corp.example.com."
	addr := startDNSServer(t, map[string][]dns.RR{
		name: {
			srvRecord(t, name+" 600 IN SRV 10 50 389 dc2.corp.example.com."),
			srvRecord(t, name+" 600 IN SRV 0 100 389 dc1.corp.example.com."),
			srvRecord(t, name+" 600 IN SRV 10 80 389 dc3.corp.example.com."),
		},
	})

	locator := NewDNSLocator(nil)
	dcs, err := locator.LocateDomainControllers(context.Background(), "corp.example.com", addr)
	require.NoError(t, err)
	assert.Equal(t, []string{"dc1.corp.example.com", "dc3.corp.example.com", "dc2.corp.example.com"}, dcs)
}

func TestDNSLocator_NoControllers(t *testing.T) {
	addr := startDNSServer(t, map[string][]dns.RR{})

	_, err := NewDNSLocator(nil).LocateDomainControllers(context.Background(), "nowhere.example", addr)
	assert.ErrorIs(t, err, interfaces.ErrNoDomainController)
}

func TestDNSLocator_UnreachableServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	locator := NewDNSLocator(nil)
	locator.client.Timeout = 200 * time.Millisecond
	_, err = locator.LocateDomainControllers(context.Background(), "corp.example.com", addr)
	assert.ErrorIs(t, err, interfaces.ErrNoDomainController)
}

func TestDomainControllerRecord(t *testing.T) {
	assert.Equal(t, "_ldap._tcp.dc._msdcs.corp.example.com.", domainControllerRecord("corp.example.com"))
	assert.Equal(t, "_ldap._tcp.dc._msdcs.corp.example.com.", domainControllerRecord("corp.example.com."))
}

func TestWithDNSPort(t *testing.T) {
	assert.Equal(t, "10.0.0.1:53", withDNSPort("10.0.0.1"))
	assert.Equal(t, "10.0.0.1:5353", withDNSPort("10.0.0.1:5353"))
	assert.Equal(t, "[::1]:53", withDNSPort("::1"))
}

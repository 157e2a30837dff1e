// Package payloads holds the UDP probe payloads keyed by destination port.
// Well-known services get a request they will answer; every other port gets
// a generic marker datagram.
package payloads

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
)

const (
	PortDNS  = 53
	PortNTP  = 123
	PortSNMP = 161

	dnsQueryName  = "www.google.com."
	snmpCommunity = "public"
	snmpOID       = ".1.3.6.1.2.1"

	ntpPacketSize = 48
	// LI=0, VN=3, Mode=3 (client).
	ntpClientHeader = 0x1b
)

// Generic is sent to ports without a dedicated payload.
var Generic = []byte("PORT_SCAN_TEST_PACKET")

// Table maps destination ports to UDP payloads. It is safe for concurrent
// reads once built.
type Table struct {
	payloads map[int][]byte
	fallback []byte
}

// NewTable builds the DNS, NTP and SNMP payloads, then applies overrides.
func NewTable(overrides map[int][]byte) (*Table, error) {
	dnsQuery, err := DNSQuery(dnsQueryName)
	if err != nil {
		return nil, err
	}
	snmpGet, err := SNMPGetRequest(snmpCommunity, snmpOID)
	if err != nil {
		return nil, err
	}

	t := &Table{
		payloads: map[int][]byte{
			PortDNS:  dnsQuery,
			PortNTP:  NTPRequest(),
			PortSNMP: snmpGet,
		},
		fallback: Generic,
	}
	for port, payload := range overrides {
		if len(payload) > 0 {
			t.payloads[port] = slices.Clone(payload)
		}
	}
	return t, nil
}

// Payload returns a copy of the payload for port, or the generic payload.
func (t *Table) Payload(port int) []byte {
	if payload, ok := t.payloads[port]; ok {
		return slices.Clone(payload)
	}
	return slices.Clone(t.fallback)
}

// Ports lists the ports with a dedicated payload, ascending.
func (t *Table) Ports() []int {
	return slices.Sorted(maps.Keys(t.payloads))
}

// DNSQuery packs a recursive A query for name with message id zero.
func DNSQuery(name string) ([]byte, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.Id = 0
	msg.RecursionDesired = true

	packed, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack DNS query: %w", err)
	}
	return packed, nil
}

// NTPRequest returns a 48-byte NTPv3 client request.
func NTPRequest() []byte {
	packet := make([]byte, ntpPacketSize)
	packet[0] = ntpClientHeader
	return packet
}

// SNMPGetRequest encodes an SNMPv1 GetRequest for oid.
func SNMPGetRequest(community, oid string) ([]byte, error) {
	packet := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version1,
		Community: community,
		PDUType:   gosnmp.GetRequest,
		RequestID: 0,
		Variables: []gosnmp.SnmpPDU{
			{Name: oid, Type: gosnmp.Null},
		},
	}
	encoded, err := packet.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("failed to encode SNMP request: %w", err)
	}
	return encoded, nil
}

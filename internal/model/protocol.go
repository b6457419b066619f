package model

import "time"

// Tag is the application protocol label assigned to a packet or a flow.
type Tag string

const (
	TagHTTP  Tag = "http"
	TagHTTPS Tag = "https"
	TagFTP   Tag = "ftp"
	TagSMTP  Tag = "smtp"
	TagPOP3  Tag = "pop3"
	TagIMAP  Tag = "imap"
	TagSSH   Tag = "ssh"
	TagDNS   Tag = "dns"
	TagDHCP  Tag = "dhcp"
	TagICMP  Tag = "icmp"
	TagOther Tag = "other"
)

// AllTags lists every protocol tag in a stable order.
var AllTags = []Tag{
	TagHTTP, TagHTTPS, TagFTP, TagSMTP, TagPOP3, TagIMAP,
	TagSSH, TagDNS, TagDHCP, TagICMP, TagOther,
}

// Valid reports whether t is one of the enumerated tags.
func (t Tag) Valid() bool {
	for _, v := range AllTags {
		if v == t {
			return true
		}
	}
	return false
}

// Counter is a packet/byte counter pair.
type Counter struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// ProtocolStats maps every protocol tag to its cumulative counters.
type ProtocolStats map[Tag]Counter

// NewProtocolStats returns a ProtocolStats with every tag seeded at zero.
func NewProtocolStats() ProtocolStats {
	s := make(ProtocolStats, len(AllTags))
	for _, t := range AllTags {
		s[t] = Counter{}
	}
	return s
}

// Clone returns a deep copy.
func (s ProtocolStats) Clone() ProtocolStats {
	c := make(ProtocolStats, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// StatsHistorySample is a copy of the cumulative counters taken at Timestamp.
type StatsHistorySample struct {
	Timestamp time.Time
	Protocols ProtocolStats
}

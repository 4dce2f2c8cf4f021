package message

import "strings"

// ContentFormat / Accept / MaxAge / Size1 / Size2 / UriPort / Observe are
// all RFC 7252 uint options: minimal big-endian encoding, see
// options.go:encodeUint.

func (m *Message) ContentFormat() (uint32, bool) {
	v, ok := m.getFirst(OptionContentFormat)
	if !ok {
		return 0, false
	}
	return decodeUint(v), true
}

func (m *Message) SetContentFormat(v uint32) {
	m.setSingle(OptionContentFormat, encodeUint(v))
}

func (m *Message) Accept() (uint32, bool) {
	v, ok := m.getFirst(OptionAccept)
	if !ok {
		return 0, false
	}
	return decodeUint(v), true
}

func (m *Message) SetAccept(v uint32) {
	m.setSingle(OptionAccept, encodeUint(v))
}

// MaxAge returns the Max-Age value, defaulting to 60 seconds per RFC 7252
// section 5.10.5 when the option is absent.
func (m *Message) MaxAge() uint32 {
	v, ok := m.getFirst(OptionMaxAge)
	if !ok {
		return 60
	}
	return decodeUint(v)
}

func (m *Message) SetMaxAge(v uint32) {
	m.setSingle(OptionMaxAge, encodeUint(v))
}

func (m *Message) Size1() (uint32, bool) {
	v, ok := m.getFirst(OptionSize1)
	if !ok {
		return 0, false
	}
	return decodeUint(v), true
}

func (m *Message) SetSize1(v uint32) {
	m.setSingle(OptionSize1, encodeUint(v))
}

func (m *Message) Size2() (uint32, bool) {
	v, ok := m.getFirst(OptionSize2)
	if !ok {
		return 0, false
	}
	return decodeUint(v), true
}

func (m *Message) SetSize2(v uint32) {
	m.setSingle(OptionSize2, encodeUint(v))
}

func (m *Message) UriPort() (uint32, bool) {
	v, ok := m.getFirst(OptionUriPort)
	if !ok {
		return 0, false
	}
	return decodeUint(v), true
}

func (m *Message) SetUriPort(v uint32) {
	m.setSingle(OptionUriPort, encodeUint(v))
}

// Observe returns the 24-bit sequence counter, masked per spec.md section
// 3's "24-bit" invariant.
func (m *Message) Observe() (uint32, bool) {
	v, ok := m.getFirst(OptionObserve)
	if !ok {
		return 0, false
	}
	return decodeUint(v) & 0xFFFFFF, true
}

func (m *Message) SetObserve(v uint32) {
	m.setSingle(OptionObserve, encodeUint(v&0xFFFFFF))
}

func (m *Message) RemoveObserve() {
	m.removeOption(OptionObserve)
}

// Opaque options: ETag, If-Match. ETag is single-valued here (a
// generated or stored tag); If-Match is genuinely repeatable (RFC 7252
// section 5.10.8.1) so it returns every instance.

func (m *Message) ETag() ([]byte, bool) {
	return m.getFirst(OptionETag)
}

func (m *Message) SetETag(tag []byte) {
	m.setSingle(OptionETag, append([]byte(nil), tag...))
}

func (m *Message) IfMatch() [][]byte {
	return m.getAll(OptionIfMatch)
}

func (m *Message) AddIfMatch(tag []byte) {
	m.addOption(OptionIfMatch, append([]byte(nil), tag...))
}

// IfNoneMatch is presence-only (RFC 7252 section 5.10.8.2): an empty
// option value.
func (m *Message) IfNoneMatch() bool {
	return m.HasOption(OptionIfNoneMatch)
}

func (m *Message) SetIfNoneMatch() {
	m.setSingle(OptionIfNoneMatch, nil)
}

// String options: Uri-Host, Proxy-Uri, Proxy-Scheme are single-valued.

func (m *Message) UriHost() (string, bool) {
	v, ok := m.getFirst(OptionUriHost)
	return string(v), ok
}

func (m *Message) SetUriHost(host string) {
	m.setSingle(OptionUriHost, []byte(host))
}

func (m *Message) ProxyUri() (string, bool) {
	v, ok := m.getFirst(OptionProxyUri)
	return string(v), ok
}

func (m *Message) SetProxyUri(uri string) {
	m.setSingle(OptionProxyUri, []byte(uri))
}

func (m *Message) ProxyScheme() (string, bool) {
	v, ok := m.getFirst(OptionProxyScheme)
	return string(v), ok
}

func (m *Message) SetProxyScheme(scheme string) {
	m.setSingle(OptionProxyScheme, []byte(scheme))
}

// Multi-segment options: Uri-Path, Uri-Query, Location-Path,
// Location-Query. Per spec.md section 3/4.1 these are "stored
// concatenated with an internal separator and a concatenated length";
// here the concatenation is the natural joined form ("/"-joined path
// segments, "&"-joined query pairs) and encoding splits back on that
// separator into one wire option per segment.

func (m *Message) UriPath() (string, bool) {
	segs := m.getAll(OptionUriPath)
	if len(segs) == 0 {
		return "", false
	}
	return joinSegments(segs, "/"), true
}

func (m *Message) SetUriPath(path string) {
	m.removeOption(OptionUriPath)
	for _, seg := range splitSegments(path, '/') {
		m.addOption(OptionUriPath, []byte(seg))
	}
}

func (m *Message) UriQuery() (string, bool) {
	segs := m.getAll(OptionUriQuery)
	if len(segs) == 0 {
		return "", false
	}
	return joinSegments(segs, "&"), true
}

func (m *Message) SetUriQuery(query string) {
	m.removeOption(OptionUriQuery)
	for _, seg := range splitSegments(query, '&') {
		m.addOption(OptionUriQuery, []byte(seg))
	}
}

func (m *Message) LocationPath() (string, bool) {
	segs := m.getAll(OptionLocationPath)
	if len(segs) == 0 {
		return "", false
	}
	return joinSegments(segs, "/"), true
}

func (m *Message) SetLocationPath(path string) {
	m.removeOption(OptionLocationPath)
	for _, seg := range splitSegments(path, '/') {
		m.addOption(OptionLocationPath, []byte(seg))
	}
}

func (m *Message) LocationQuery() (string, bool) {
	segs := m.getAll(OptionLocationQuery)
	if len(segs) == 0 {
		return "", false
	}
	return joinSegments(segs, "&"), true
}

func (m *Message) SetLocationQuery(query string) {
	m.removeOption(OptionLocationQuery)
	for _, seg := range splitSegments(query, '&') {
		m.addOption(OptionLocationQuery, []byte(seg))
	}
}

func joinSegments(segs [][]byte, sep string) string {
	strs := make([]string, len(segs))
	for i, s := range segs {
		strs[i] = string(s)
	}
	return strings.Join(strs, sep)
}

func splitSegments(s string, sep byte) []string {
	s = strings.Trim(s, string(sep))
	if s == "" {
		return nil
	}
	return strings.Split(s, string(sep))
}

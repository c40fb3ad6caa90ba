// Package protocol defines the stanza framing and query payloads exchanged
// with the game backend over the messaging connection.
package protocol

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	// Namespace is the xmlns carried by every game query.
	Namespace = "urn:cryonline:k01"

	// DefaultDomain is the backend's XMPP domain.
	DefaultDomain = "warface"

	// MaxStanzaSize bounds a single outbound stanza (256KB).
	MaxStanzaSize = 262144
)

// IQ types.
const (
	TypeGet    = "get"
	TypeResult = "result"
	TypeError  = "error"
)

var ErrStanzaTooLarge = errors.New("protocol: stanza too large")

// K01 returns the address of the matchmaking service.
func K01(domain string) string {
	return "k01." + domain
}

// MasterServer returns the address of the masterserver hosting channel.
func MasterServer(domain, channel string) string {
	return "masterserver@" + domain + "/" + channel
}

// StanzaError is the <error/> child of an error-typed IQ. Missing or
// malformed codes read as zero.
type StanzaError struct {
	Type       string `xml:"type,attr"`
	RawCode    string `xml:"code,attr"`
	RawCustom  string `xml:"custom_code,attr"`
	Conditions []byte `xml:",innerxml"`
}

// Code returns the numeric error code.
func (e *StanzaError) Code() int {
	return int(parseInt(e.RawCode))
}

// CustomCode returns the backend-specific sub-code.
func (e *StanzaError) CustomCode() int {
	return int(parseInt(e.RawCustom))
}

type rawQuery struct {
	Inner []byte `xml:",innerxml"`
}

// IQ is an info/query stanza.
type IQ struct {
	XMLName xml.Name     `xml:"iq"`
	ID      string       `xml:"id,attr"`
	Type    string       `xml:"type,attr"`
	From    string       `xml:"from,attr,omitempty"`
	To      string       `xml:"to,attr,omitempty"`
	Query   *rawQuery    `xml:"query"`
	Error   *StanzaError `xml:"error"`
}

// IsError reports whether the stanza is error-typed.
func (iq *IQ) IsError() bool {
	return iq.Type == TypeError
}

// QueryInner returns the raw children of the <query/> element, or nil.
func (iq *IQ) QueryInner() []byte {
	if iq.Query == nil {
		return nil
	}
	return iq.Query.Inner
}

// MarshalIQ serializes a request stanza carrying q.
func MarshalIQ(id, typ, to string, q Query) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("<iq")
	writeAttr(&b, "id", id)
	writeAttr(&b, "type", typ)
	if to != "" {
		writeAttr(&b, "to", to)
	}
	b.WriteString(">")
	b.WriteString(q.String())
	b.WriteString("</iq>")

	if b.Len() > MaxStanzaSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrStanzaTooLarge, b.Len())
	}
	return b.Bytes(), nil
}

// WriteIQ writes one request stanza to w.
func WriteIQ(w io.Writer, id, typ, to string, q Query) error {
	data, err := MarshalIQ(id, typ, to, q)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write stanza: %w", err)
	}
	return nil
}

// Decoder reads successive IQ stanzas from a stream. The stream opener is
// skipped and stanzas other than <iq/> are discarded.
type Decoder struct {
	dec *xml.Decoder
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: xml.NewDecoder(r)}
}

// Next returns the next IQ. It returns io.EOF once the stream is closed.
func (d *Decoder) Next() (*IQ, error) {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("protocol: read stanza: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "stream":
				continue
			case "iq":
				iq := &IQ{}
				if err := d.dec.DecodeElement(iq, &t); err != nil {
					return nil, fmt.Errorf("protocol: decode iq: %w", err)
				}
				return iq, nil
			default:
				if err := d.dec.Skip(); err != nil {
					return nil, fmt.Errorf("protocol: skip stanza: %w", err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "stream" {
				return nil, io.EOF
			}
		}
	}
}

func writeAttr(b *bytes.Buffer, name, value string) {
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString("='")
	_ = xml.EscapeText(b, []byte(value))
	b.WriteString("'")
}

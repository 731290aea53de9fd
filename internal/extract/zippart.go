package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/antchfx/xmlquery"
)

// maxPartSize bounds the decompressed size of a single zip member.
const maxPartSize = 64 << 20

var errPartTooLarge = errors.New("zip member exceeds size limit")

func openZip(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// readPart returns the decompressed content of the member called name.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	rc, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxPartSize {
		return nil, fmt.Errorf("%s: %w", name, errPartTooLarge)
	}
	return b, nil
}

// parsePart parses the XML member called name.
func parsePart(p XMLParser, zr *zip.Reader, name string) (*xmlquery.Node, error) {
	b, err := readPart(zr, name)
	if err != nil {
		return nil, err
	}
	return p.ParseXML(bytes.NewReader(b))
}

// partNames returns the members whose name starts with prefix and ends
// with suffix, in archive order.
func partNames(zr *zip.Reader, prefix, suffix string) []string {
	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, prefix) && strings.HasSuffix(f.Name, suffix) {
			names = append(names, f.Name)
		}
	}
	return names
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// xmlqueryParser is the XMLParser backed by github.com/antchfx/xmlquery.
type xmlqueryParser struct{}

func (xmlqueryParser) Library() string { return "github.com/antchfx/xmlquery" }

func (xmlqueryParser) ParseXML(r io.Reader) (*xmlquery.Node, error) {
	return xmlquery.Parse(r)
}

// byLocal builds an XPath expression step that ignores namespaces.
func byLocal(name string) string {
	return "*[local-name()='" + name + "']"
}

// elementsByLocal returns the elements below root with the given local
// name in document order.
func elementsByLocal(root *xmlquery.Node, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	var walk func(*xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode && c.Data == local {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// hasAncestor reports whether an ancestor of n has the given local name.
func hasAncestor(n *xmlquery.Node, local string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == xmlquery.ElementNode && p.Data == local {
			return true
		}
	}
	return false
}

// nodeText returns the trimmed text content of n.
func nodeText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

// attrLocal returns the value of the attribute with the given local name.
func attrLocal(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// displayInfo identifies one connected display output and the I2C node
// that reaches its DDC channel.
type displayInfo struct {
	Key       string // stable fingerprint derived from the EDID
	Connector string // DRM connector name, e.g. card0-DP-1
	Name      string // monitor model from the EDID display descriptor
	I2CPath   string // /dev/i2c-N, empty when the connector exposes no ddc link
	External  bool
}

// displayResolver locates connected displays through the DRM sysfs tree
// and maps each connector to its DDC i2c adapter. Roots are fields so
// tests can point the resolver at a fabricated tree.
type displayResolver struct {
	drmRoot string
	devDir  string
	log     *slog.Logger
}

func newDisplayResolver(logger *slog.Logger) *displayResolver {
	return &displayResolver{
		drmRoot: "/sys/class/drm",
		devDir:  "/dev",
		log:     logger,
	}
}

// internal panel connector prefixes, never DDC targets
var internalConnectors = []string{"eDP", "LVDS", "DSI"}

func connectorExternal(connector string) bool {
	// connector names look like card0-DP-1; strip the card prefix
	name := connector
	if i := strings.IndexByte(name, '-'); i >= 0 {
		name = name[i+1:]
	}
	for _, p := range internalConnectors {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

// connected returns every connector whose status reads "connected",
// sorted by connector name so target resolution is deterministic.
func (r *displayResolver) connected() ([]displayInfo, error) {
	entries, err := os.ReadDir(r.drmRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.drmRoot, err)
	}
	var out []displayInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "card") || !strings.Contains(name, "-") {
			continue
		}
		status, err := os.ReadFile(filepath.Join(r.drmRoot, name, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "connected" {
			continue
		}
		info := r.describe(name)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Connector < out[j].Connector })
	return out, nil
}

// describe builds the displayInfo for one connected connector.
func (r *displayResolver) describe(connector string) displayInfo {
	info := displayInfo{
		Connector: connector,
		External:  connectorExternal(connector),
	}
	edid, err := os.ReadFile(filepath.Join(r.drmRoot, connector, "edid"))
	if err == nil {
		if id, perr := parseEDID(edid); perr == nil {
			info.Name = id.Model
			info.Key = id.fingerprint()
		} else {
			r.log.Debug("unparseable edid", "connector", connector, "error", perr)
		}
	}
	if info.Key == "" {
		// no usable EDID; the connector name still identifies the port
		info.Key = connector
	} else if strings.HasSuffix(info.Key, "-00000000") {
		// serial-less panels collide across identical models; pin to the port
		info.Key += "@" + connector
	}
	if path, err := r.ddcPath(connector); err == nil {
		info.I2CPath = path
	} else {
		r.log.Debug("no ddc link for connector", "connector", connector, "error", err)
	}
	return info
}

// ddcPath resolves the connector's ddc symlink to a /dev/i2c-N node.
func (r *displayResolver) ddcPath(connector string) (string, error) {
	link := filepath.Join(r.drmRoot, connector, "ddc")
	target, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	base := filepath.Base(target)
	if !strings.HasPrefix(base, "i2c-") {
		return "", fmt.Errorf("ddc link resolves to %q, not an i2c adapter", base)
	}
	return filepath.Join(r.devDir, base), nil
}

// candidateBuses lists i2c device nodes worth probing when a connector
// has no ddc link. Display-related adapter names go first; the rest of
// the nodes follow so an oddly named adapter is still reachable.
func (r *displayResolver) candidateBuses() []string {
	var likely, rest []string
	for n := 0; n < probeMaxBusScan; n++ {
		dev := filepath.Join(r.devDir, fmt.Sprintf("i2c-%d", n))
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		name, _ := os.ReadFile(fmt.Sprintf("/sys/class/i2c-adapter/i2c-%d/name", n))
		lower := strings.ToLower(string(name))
		if strings.Contains(lower, "ddc") || strings.Contains(lower, "displayport") ||
			strings.Contains(lower, "hdmi") || strings.Contains(lower, "gmbus") {
			likely = append(likely, dev)
		} else {
			rest = append(rest, dev)
		}
	}
	return append(likely, rest...)
}

// edidIdentity is the identifying subset of an EDID block.
type edidIdentity struct {
	Vendor  string // three-letter PNP id
	Product uint16
	Serial  uint32
	Model   string
}

func (id edidIdentity) fingerprint() string {
	return fmt.Sprintf("%s-%04X-%08X", id.Vendor, id.Product, id.Serial)
}

var edidHeader = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

var errBadEDID = errors.New("malformed edid block")

// parseEDID extracts the vendor/product/serial identity and the model
// name descriptor from a base EDID block.
func parseEDID(b []byte) (edidIdentity, error) {
	if len(b) < 128 || !bytes.Equal(b[:8], edidHeader) {
		return edidIdentity{}, errBadEDID
	}
	var id edidIdentity
	// manufacturer id: three 5-bit letters packed big-endian in bytes 8-9
	mfg := binary.BigEndian.Uint16(b[8:10])
	id.Vendor = string([]byte{
		byte((mfg>>10)&0x1F) + 'A' - 1,
		byte((mfg>>5)&0x1F) + 'A' - 1,
		byte(mfg&0x1F) + 'A' - 1,
	})
	id.Product = binary.LittleEndian.Uint16(b[10:12])
	id.Serial = binary.LittleEndian.Uint32(b[12:16])
	// display descriptors: four 18-byte blocks, tag 0xFC holds the model
	for _, off := range []int{54, 72, 90, 108} {
		d := b[off : off+18]
		if d[0] == 0 && d[1] == 0 && d[2] == 0 && d[3] == 0xFC {
			name := string(d[5:18])
			if i := strings.IndexByte(name, 0x0A); i >= 0 {
				name = name[:i]
			}
			id.Model = strings.TrimSpace(name)
			break
		}
	}
	return id, nil
}

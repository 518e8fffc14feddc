package fm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/font/sfnt"
)

// ErrNotAFont is returned for files that cannot be parsed as a font.
var ErrNotAFont = errors.New("not a font file")

// Filetypes reported in FontRecord.Filetype.
const (
	FiletypeTrueType   = "TrueType"
	FiletypeOpenType   = "OpenType"
	FiletypeCollection = "TrueType Collection"
)

// ExtractMetadata reads the font file at path and returns one record per
// face. Owner and the layout strings are left for the caller to refine.
func ExtractMetadata(path string) ([]FontRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat font: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	records, err := ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range records {
		records[i].Filepath = path
		records[i].Modified = info.ModTime()
	}
	return records, nil
}

// ParseMetadata extracts the records of every face in data. Filepath and
// Modified are not set.
func ParseMetadata(data []byte) ([]FontRecord, error) {
	if len(data) < 12 {
		return nil, ErrNotAFont
	}

	sum := sha256.Sum256(data)
	base := FontRecord{
		Filesize: int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}

	var (
		faces   []*sfnt.Font
		offsets []uint32
	)
	switch string(data[:4]) {
	case "ttcf":
		base.Filetype = FiletypeCollection
		c, err := sfnt.ParseCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAFont, err)
		}
		numFonts := binary.BigEndian.Uint32(data[8:12])
		for i := 0; i < c.NumFonts(); i++ {
			f, err := c.Font(i)
			if err != nil {
				return nil, fmt.Errorf("%w: face %d: %v", ErrNotAFont, i, err)
			}
			faces = append(faces, f)
			var off uint32
			if pos := 12 + 4*i; uint32(i) < numFonts && pos+4 <= len(data) {
				off = binary.BigEndian.Uint32(data[pos : pos+4])
			}
			offsets = append(offsets, off)
		}
	case "OTTO":
		base.Filetype = FiletypeOpenType
		fallthrough
	case "\x00\x01\x00\x00", "true":
		if base.Filetype == "" {
			base.Filetype = FiletypeTrueType
		}
		f, err := sfnt.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAFont, err)
		}
		faces = []*sfnt.Font{f}
		offsets = []uint32{0}
	default:
		return nil, ErrNotAFont
	}

	records := make([]FontRecord, 0, len(faces))
	for i, f := range faces {
		r := base
		r.FaceIndex = i
		fillNames(&r, f)
		os2, ok := readOS2(data, offsets[i])
		fillOS2(&r, os2, ok)
		records = append(records, r)
	}
	return records, nil
}

func fillNames(r *FontRecord, f *sfnt.Font) {
	var buf sfnt.Buffer
	name := func(ids ...sfnt.NameID) string {
		for _, id := range ids {
			if s, err := f.Name(&buf, id); err == nil {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
		return ""
	}

	r.Family = name(sfnt.NameIDTypographicFamily, sfnt.NameIDFamily)
	r.Style = name(sfnt.NameIDTypographicSubfamily, sfnt.NameIDSubfamily)
	r.PSName = name(sfnt.NameIDPostScript)
	r.Copyright = name(sfnt.NameIDCopyright)
	r.Version = name(sfnt.NameIDVersion)
	r.Description = name(sfnt.NameIDDescription)
	r.LicenseData = name(sfnt.NameIDLicense)
	r.LicenseURL = name(sfnt.NameIDLicenseURL)
	r.Foundry = name(sfnt.NameIDManufacturer)

	if r.Family == "" {
		r.Family = name(sfnt.NameIDFull)
	}
	if r.Style == "" {
		r.Style = "Regular"
	}
}

// os2 holds the OS/2 table fields sfnt does not expose.
type os2 struct {
	weightClass int
	widthClass  int
	panose      [10]byte
	vendor      string
	italic      bool
	oblique     bool
}

// readOS2 locates the OS/2 table through the table directory starting at
// offset.
func readOS2(data []byte, offset uint32) (os2, bool) {
	var t os2
	dir := int(offset)
	if dir+12 > len(data) {
		return t, false
	}
	numTables := int(binary.BigEndian.Uint16(data[dir+4 : dir+6]))
	for i := 0; i < numTables; i++ {
		rec := dir + 12 + 16*i
		if rec+16 > len(data) {
			return t, false
		}
		if string(data[rec:rec+4]) != "OS/2" {
			continue
		}
		start := int(binary.BigEndian.Uint32(data[rec+8 : rec+12]))
		length := int(binary.BigEndian.Uint32(data[rec+12 : rec+16]))
		if length < 64 || start < 0 || start+length > len(data) {
			return t, false
		}
		tbl := data[start : start+length]
		t.weightClass = int(binary.BigEndian.Uint16(tbl[4:6]))
		t.widthClass = int(binary.BigEndian.Uint16(tbl[6:8]))
		copy(t.panose[:], tbl[32:42])
		t.vendor = strings.TrimSpace(string(bytes.Trim(tbl[58:62], "\x00 ")))
		fsSelection := binary.BigEndian.Uint16(tbl[62:64])
		t.italic = fsSelection&0x0001 != 0
		t.oblique = fsSelection&0x0200 != 0
		return t, true
	}
	return t, false
}

func fillOS2(r *FontRecord, t os2, ok bool) {
	manufacturer := r.Foundry
	r.Foundry = "unknown"
	if ok && usableVendor(t.vendor) {
		r.Foundry = t.vendor
	} else if manufacturer != "" {
		r.Foundry = manufacturer
	}

	if ok {
		digits := make([]string, len(t.panose))
		for i, b := range t.panose {
			digits[i] = strconv.Itoa(int(b))
		}
		r.Panose = strings.Join(digits, ":")
	}

	weight, width := 400, 5
	if ok {
		if t.weightClass > 0 {
			weight = t.weightClass
		}
		if t.widthClass >= 1 && t.widthClass <= 9 {
			width = t.widthClass
		}
	}
	slant := slantFromStyle(r.Style)
	if ok && t.oblique {
		slant = "Oblique"
	} else if ok && t.italic && slant == "Normal" {
		slant = "Italic"
	}

	r.PFamily = r.Family
	r.PStyle = slant
	r.PVariant = variantFromStyle(r.Style)
	r.PWeight = WeightName(weight)
	r.PStretch = StretchName(width)
	r.PDescription = describe(r.Family, r.Style)
}

func usableVendor(v string) bool {
	switch strings.ToUpper(v) {
	case "", "NONE", "????", "UKWN", "XXXX":
		return false
	}
	return true
}

var weightNames = []struct {
	class int
	name  string
}{
	{100, "Thin"},
	{200, "Ultralight"},
	{300, "Light"},
	{350, "Semilight"},
	{380, "Book"},
	{400, "Normal"},
	{500, "Medium"},
	{600, "Semibold"},
	{700, "Bold"},
	{800, "Ultrabold"},
	{900, "Heavy"},
	{1000, "Ultraheavy"},
}

// WeightName maps an OS/2 weight class to the nearest named weight.
func WeightName(class int) string {
	best := weightNames[0]
	for _, w := range weightNames[1:] {
		if abs(w.class-class) < abs(best.class-class) {
			best = w
		}
	}
	return best.name
}

var stretchNames = []string{
	"UltraCondensed", "ExtraCondensed", "Condensed", "SemiCondensed", "Normal",
	"SemiExpanded", "Expanded", "ExtraExpanded", "UltraExpanded",
}

// StretchName maps an OS/2 width class (1-9) to its name.
func StretchName(class int) string {
	if class < 1 || class > len(stretchNames) {
		return "Normal"
	}
	return stretchNames[class-1]
}

// fontconfig weight → OS/2 weight class.
var fcWeights = []struct{ fc, class int }{
	{0, 100}, {40, 200}, {50, 300}, {55, 350}, {75, 380}, {80, 400},
	{100, 500}, {180, 600}, {200, 700}, {205, 800}, {210, 900}, {215, 1000},
}

// fontconfig width → OS/2 width class.
var fcWidths = []int{50, 63, 75, 87, 100, 113, 125, 150, 200}

func weightClassFromFc(fc int) int {
	best := fcWeights[0]
	for _, w := range fcWeights[1:] {
		if abs(w.fc-fc) < abs(best.fc-fc) {
			best = w
		}
	}
	return best.class
}

func widthClassFromFc(fc int) int {
	best := 0
	for i, w := range fcWidths {
		if abs(w-fc) < abs(fcWidths[best]-fc) {
			best = i
		}
	}
	return best + 1
}

func slantFromFc(fc int) string {
	switch {
	case fc >= 110:
		return "Oblique"
	case fc >= 100:
		return "Italic"
	}
	return "Normal"
}

func slantFromStyle(style string) string {
	s := strings.ToLower(style)
	switch {
	case strings.Contains(s, "oblique"), strings.Contains(s, "slanted"):
		return "Oblique"
	case strings.Contains(s, "italic"):
		return "Italic"
	}
	return "Normal"
}

func variantFromStyle(style string) string {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	if strings.Contains(s, "smallcaps") {
		return "SmallCaps"
	}
	return "Normal"
}

func describe(family, style string) string {
	switch strings.ToLower(style) {
	case "", "regular", "normal", "book", "roman":
		return family
	}
	return family + " " + style
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

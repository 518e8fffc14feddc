package fm

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const fontconfigDoctype = `<!DOCTYPE fontconfig SYSTEM "fonts.dtd">` + "\n"

// fontconfig document subset used by the blacklist and directory files.
type fcConfig struct {
	XMLName    xml.Name      `xml:"fontconfig"`
	Dirs       []string      `xml:"dir,omitempty"`
	SelectFont *fcSelectFont `xml:"selectfont,omitempty"`
}

type fcSelectFont struct {
	Reject fcPatterns `xml:"rejectfont"`
}

type fcPatterns struct {
	Patterns []fcPattern `xml:"pattern"`
}

type fcPattern struct {
	Elts []fcPatElt `xml:"patelt"`
}

type fcPatElt struct {
	Name   string `xml:"name,attr"`
	String string `xml:"string"`
}

const fcTemplate = xml.Header + fontconfigDoctype + "<fontconfig>\n</fontconfig>\n"

// readXML decodes the file at path into v. A missing file decodes template.
// A file that does not parse is moved to path.bak and replaced by template.
func readXML(path string, v any, template string, logger Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return xml.Unmarshal([]byte(template), v)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err = xml.Unmarshal(data, v); err == nil {
		return nil
	}
	logger.Warn("configuration file is broken, replacing it", "path", path, "error", err)

	if err := os.Rename(path, path+".bak"); err != nil {
		return fmt.Errorf("backing up broken %s: %w", path, err)
	}
	if err := writeFileAtomic(path, []byte(template)); err != nil {
		return err
	}
	return xml.Unmarshal([]byte(template), v)
}

// writeXML encodes v to path, copying the previous version to path.bak.
func writeXML(path string, v any, doctype string) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(doctype)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	buf.WriteByte('\n')

	if err := backupFile(path); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func backupFile(path string) error {
	src, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s for backup: %w", path, err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".bak")
	if err != nil {
		return fmt.Errorf("creating backup of %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying backup of %s: %w", path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

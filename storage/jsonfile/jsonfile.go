// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jsonfile reads and writes the plain-file data directory layout:
//
//	data/
//	  descriptions.json   {"descriptions": [{"id", "text", "keywords"}, ...]}
//	  mappings.json       {"image.jpg": {"description_id", "description_text", "keywords"}, ...}
//	  images/             image files
//
// Description entries may also be bare strings or objects without an id or
// keywords; the importer fills those in. Mapping order in mappings.json is
// preserved on read and write.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/picmatch/core"
)

// Layout names inside a data directory.
const (
	DescriptionsFile = "descriptions.json"
	MappingsFile     = "mappings.json"
	ImagesDir        = "images"
)

// ImageExtensions lists the file extensions recognised as images.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp"}

// DescriptionInput is one entry of descriptions.json. Id and Keywords are
// empty when the file omits them.
type DescriptionInput struct {
	Id       string
	Text     string
	Keywords []string
}

// UnmarshalJSON accepts either a bare string or a {"id", "text", "keywords"} object.
func (d *DescriptionInput) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*d = DescriptionInput{Text: text}
		return nil
	}

	var record descriptionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	*d = DescriptionInput{Id: record.Id, Text: record.Text, Keywords: record.Keywords}
	return nil
}

type descriptionRecord struct {
	Id       string   `json:"id,omitempty"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

type descriptionsFile struct {
	Descriptions []DescriptionInput `json:"descriptions"`
}

type mappingRecord struct {
	DescriptionId   string   `json:"description_id"`
	DescriptionText string   `json:"description_text,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

// Dataset is the parsed contents of a data directory.
type Dataset struct {
	Descriptions []DescriptionInput
	// Mappings is nil when mappings.json does not exist.
	Mappings []core.Mapping
	// Images holds image file names, sorted.
	Images []string
}

// HasMappings reports whether the directory carried a mappings file.
func (d *Dataset) HasMappings() bool {
	return d.Mappings != nil
}

// ReadDir loads a data directory. Missing files and a missing images
// directory are treated as empty.
func ReadDir(dir string) (*Dataset, error) {
	descriptions, err := ReadDescriptions(filepath.Join(dir, DescriptionsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	mappings, err := ReadMappings(filepath.Join(dir, MappingsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	images, err := ScanImages(filepath.Join(dir, ImagesDir))
	if err != nil {
		return nil, err
	}

	return &Dataset{Descriptions: descriptions, Mappings: mappings, Images: images}, nil
}

// WriteDir writes descriptions.json and mappings.json for catalog into dir,
// creating dir if needed.
func WriteDir(dir string, catalog *core.Catalog) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := WriteDescriptions(filepath.Join(dir, DescriptionsFile), catalog.Descriptions); err != nil {
		return err
	}
	return WriteMappings(filepath.Join(dir, MappingsFile), catalog.Mappings, catalog.Descriptions)
}

// ReadDescriptions parses a descriptions file. A missing file returns an
// error wrapping os.ErrNotExist.
func ReadDescriptions(path string) ([]DescriptionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file descriptionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFile, path, err)
	}
	return file.Descriptions, nil
}

// ReadDescriptionList reads a batch of description entries. The file holds
// either a bare JSON array or the descriptions.json object.
func ReadDescriptionList(path string) ([]DescriptionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var inputs []DescriptionInput
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFile, path, err)
		}
		return inputs, nil
	}
	return ReadDescriptions(path)
}

// WriteDescriptions writes descriptions in file order.
func WriteDescriptions(path string, descriptions []core.Description) error {
	file := struct {
		Descriptions []descriptionRecord `json:"descriptions"`
	}{Descriptions: make([]descriptionRecord, len(descriptions))}
	for i := range descriptions {
		keywords := descriptions[i].Keywords
		if keywords == nil {
			keywords = []string{}
		}
		file.Descriptions[i] = descriptionRecord{
			Id:       descriptions[i].Id,
			Text:     descriptions[i].Text,
			Keywords: keywords,
		}
	}

	data, err := marshal(file)
	if err != nil {
		return fmt.Errorf("marshaling descriptions: %w", err)
	}
	return writeIndented(path, data)
}

// ReadMappings parses a mappings file, keeping the order of its keys.
// Values may be mapping objects or bare description ids.
func ReadMappings(path string) ([]core.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	malformed := func(err error) error {
		return fmt.Errorf("%w: %s: %w", ErrMalformedFile, path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, malformed(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, malformed(errors.New("expected an object"))
	}

	mappings := []core.Mapping{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		imageName, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, malformed(err)
		}
		descriptionId, err := mappingTarget(raw)
		if err != nil {
			return nil, malformed(fmt.Errorf("image %q: %w", imageName, err))
		}
		mappings = append(mappings, core.Mapping{ImageName: imageName, DescriptionId: descriptionId})
	}
	return mappings, nil
}

func mappingTarget(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var record mappingRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", err
	}
	return record.DescriptionId, nil
}

// WriteMappings writes mappings in order. Each entry repeats the text and
// keywords of its description for readability.
func WriteMappings(path string, mappings []core.Mapping, descriptions []core.Description) error {
	byID := make(map[string]*core.Description, len(descriptions))
	for i := range descriptions {
		byID[descriptions[i].Id] = &descriptions[i]
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range mappings {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshal(m.ImageName)
		if err != nil {
			return fmt.Errorf("marshaling mapping key: %w", err)
		}
		record := mappingRecord{DescriptionId: m.DescriptionId}
		if d, ok := byID[m.DescriptionId]; ok {
			record.DescriptionText = d.Text
			record.Keywords = d.Keywords
		}
		value, err := marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling mapping %q: %w", m.ImageName, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	return writeIndented(path, buf.Bytes())
}

// ScanImages lists image files in dir by name. A missing directory yields
// no images.
func ScanImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("scanning images: %w", err)
	}

	images := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsImage(entry.Name()) {
			images = append(images, entry.Name())
		}
	}
	slices.Sort(images)
	return images, nil
}

// IsImage reports whether name has a recognised image extension.
func IsImage(name string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(name)))
}

// marshal encodes v without escaping HTML characters, so descriptions
// round-trip byte for byte.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeIndented indents compact JSON and writes it atomically (temp file + rename).
func writeIndented(path string, compact []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return fmt.Errorf("indenting %s: %w", path, err)
	}
	out.WriteByte('\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(out.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persisting %s: %w", path, err)
	}
	return nil
}

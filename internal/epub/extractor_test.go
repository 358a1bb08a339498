package epub

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	epublib "github.com/simp-lee/epub"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
)

type zipEntry struct {
	name string
	body string
}

// buildArchive writes entries in order; the mimetype entry, when present, is
// stored uncompressed first, matching the EPUB packaging rule.
func buildArchive(t *testing.T, entries []zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		var (
			fw  io.Writer
			err error
		)
		if e.name == mimetypeEntry {
			fw, err = w.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store})
		} else {
			fw, err = w.Create(e.name)
		}
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := fw.Write([]byte(e.body)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="bookid">urn:uuid:0a1b2c3d-0000-4000-8000-000000000001</dc:identifier>
    <dc:title>Fallback Book</dc:title>
    <dc:creator>Test Author</dc:creator>
    <dc:language>en</dc:language>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="chapter1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="chapter1"/></spine>
</package>`

// testCoverBytes carries a JPEG SOI/JFIF header so media-type sniffing on the
// primary tier agrees with the manifest's declared type on the fallback tier.
const testCoverBytes = "\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01cover-pixels"

func validEntries() []zipEntry {
	return []zipEntry{
		{mimetypeEntry, epubMimetype},
		{containerEntry, testContainerXML},
		{"OEBPS/content.opf", testOPF},
		{"OEBPS/images/cover.jpg", testCoverBytes},
		{"OEBPS/chapter1.xhtml", `<html><body><p>Chapter text.</p></body></html>`},
	}
}

func TestValidateStructure(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func([]zipEntry) []zipEntry
		rawData []byte
		want    bool
	}{
		{
			name:   "valid archive",
			mutate: func(e []zipEntry) []zipEntry { return e },
			want:   true,
		},
		{
			name: "missing mimetype",
			mutate: func(e []zipEntry) []zipEntry {
				return e[1:]
			},
			want: false,
		},
		{
			name: "wrong mimetype content",
			mutate: func(e []zipEntry) []zipEntry {
				e[0].body = "application/zip"
				return e
			},
			want: false,
		},
		{
			name: "missing container",
			mutate: func(e []zipEntry) []zipEntry {
				return append(e[:1], e[2:]...)
			},
			want: false,
		},
		{
			name:    "not a zip at all",
			rawData: []byte("this is not a zip archive"),
			want:    false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.rawData
			if data == nil {
				data = buildArchive(t, tc.mutate(validEntries()))
			}
			if got := ValidateStructure(data); got != tc.want {
				t.Fatalf("ValidateStructure = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFallbackCoverViaContainerParsing(t *testing.T) {
	data := buildArchive(t, validEntries())

	dataURL, ok := fallbackCover(data)
	if !ok {
		t.Fatalf("fallbackCover found nothing")
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Fatalf("expected manifest media type in data URL, got %.60s", dataURL)
	}
	wantPayload := base64.StdEncoding.EncodeToString([]byte(testCoverBytes))
	if !strings.HasSuffix(dataURL, wantPayload) {
		t.Fatalf("cover payload mismatch")
	}
}

func TestExtractReadsValidArchive(t *testing.T) {
	extractor := NewExtractor(nil)
	data := buildArchive(t, validEntries())

	meta, text, err := extractor.Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if meta.Title != "Fallback Book" {
		t.Fatalf("Title = %q", meta.Title)
	}
	if meta.Author != "Test Author" {
		t.Fatalf("Author = %q", meta.Author)
	}
	if !strings.Contains(text, "Chapter text.") {
		t.Fatalf("chapter text missing from %q", text)
	}
	if meta.CoverSource == "" || meta.CoverSource == domain.CoverNone {
		t.Fatalf("expected a cover from some tier, got source %q", meta.CoverSource)
	}
	if !strings.HasPrefix(meta.Cover, "data:image/jpeg;base64,") {
		t.Fatalf("cover data URL = %.60s", meta.Cover)
	}
}

func TestExtractCoverRoutesToFallbackWhenPrimaryFails(t *testing.T) {
	cases := []struct {
		name   string
		lookup func(*epublib.Book) ([]byte, error)
	}{
		{
			name: "primary returns error",
			lookup: func(*epublib.Book) ([]byte, error) {
				return nil, errors.New("no cover strategy matched")
			},
		},
		{
			name: "primary panics",
			lookup: func(*epublib.Book) ([]byte, error) {
				panic("reader blew up")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			extractor := NewExtractor(nil)
			extractor.coverLookup = tc.lookup

			meta, _, err := extractor.Extract(buildArchive(t, validEntries()))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if meta.CoverSource != domain.CoverFallback {
				t.Fatalf("CoverSource = %q, want fallback", meta.CoverSource)
			}
			wantPayload := base64.StdEncoding.EncodeToString([]byte(testCoverBytes))
			if !strings.HasSuffix(meta.Cover, wantPayload) {
				t.Fatalf("fallback cover payload mismatch: %.60s", meta.Cover)
			}
		})
	}
}

func TestExtractCoverAbsentWhenBothTiersFail(t *testing.T) {
	extractor := NewExtractor(nil)
	extractor.coverLookup = func(*epublib.Book) ([]byte, error) {
		return nil, errors.New("no cover strategy matched")
	}

	entries := validEntries()
	entries[2].body = strings.Replace(entries[2].body, `<meta name="cover" content="cover-img"/>`, "", 1)

	meta, _, err := extractor.Extract(buildArchive(t, entries))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if meta.CoverSource != domain.CoverNone {
		t.Fatalf("CoverSource = %q, want none", meta.CoverSource)
	}
	if meta.Cover != "" {
		t.Fatalf("expected absent cover, got %.60s", meta.Cover)
	}
}

func TestFallbackCoverAbsentWithoutCoverMeta(t *testing.T) {
	entries := validEntries()
	entries[2].body = strings.Replace(entries[2].body, `<meta name="cover" content="cover-img"/>`, "", 1)
	data := buildArchive(t, entries)

	if _, ok := fallbackCover(data); ok {
		t.Fatalf("expected no cover when the package declares none")
	}
}

func TestFallbackCoverEpub3Property(t *testing.T) {
	entries := validEntries()
	entries[2].body = strings.Replace(entries[2].body, `<meta name="cover" content="cover-img"/>`, "", 1)
	entries[2].body = strings.Replace(entries[2].body,
		`<item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>`,
		`<item id="cover-img" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>`, 1)
	data := buildArchive(t, entries)

	dataURL, ok := fallbackCover(data)
	if !ok {
		t.Fatalf("expected cover via cover-image property")
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data URL %.60s", dataURL)
	}
}

func TestMapMetadataDefaults(t *testing.T) {
	meta := mapMetadata(epublib.Metadata{})
	if meta.Title != "Unknown Title" {
		t.Fatalf("Title = %q", meta.Title)
	}
	if meta.Author != "Unknown Author" {
		t.Fatalf("Author = %q", meta.Author)
	}
}

func TestEncodeDataURLSniffsMediaType(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	got := encodeDataURL("", pngHeader)
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("expected sniffed png media type, got %.40s", got)
	}

	got = encodeDataURL("image/jpeg", []byte("x"))
	if !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("declared media type should win, got %.40s", got)
	}
}

func TestExtractMetadataRejectsGarbage(t *testing.T) {
	extractor := NewExtractor(nil)

	_, err := extractor.ExtractMetadata([]byte("not an archive"))
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *epub.ExtractionError, got %T: %v", err, err)
	}
}

package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"
)

// Manual container/OPF parsing: the fallback tier for cover extraction when
// the packaging-aware reader finds nothing.

type containerXML struct {
	Rootfiles []rootfile `xml:"rootfiles>rootfile"`
}

type rootfile struct {
	FullPath string `xml:"full-path,attr"`
}

type packageDoc struct {
	Metas []opfMeta `xml:"metadata>meta"`
	Items []opfItem `xml:"manifest>item"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// fallbackCover walks META-INF/container.xml to the package document, finds
// the cover manifest item (EPUB 2 <meta name="cover"> id, or an EPUB 3
// cover-image property), resolves its href against the package document's
// directory, and encodes the bytes with the manifest-declared media type.
func fallbackCover(data []byte) (string, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false
	}

	containerRaw, err := readZipEntry(zr, containerEntry)
	if err != nil {
		return "", false
	}
	var container containerXML
	if err := xml.Unmarshal(containerRaw, &container); err != nil {
		return "", false
	}
	if len(container.Rootfiles) == 0 || strings.TrimSpace(container.Rootfiles[0].FullPath) == "" {
		return "", false
	}
	opfPath := strings.TrimSpace(container.Rootfiles[0].FullPath)

	opfRaw, err := readZipEntry(zr, opfPath)
	if err != nil {
		return "", false
	}
	var pkg packageDoc
	if err := xml.Unmarshal(opfRaw, &pkg); err != nil {
		return "", false
	}

	item, ok := coverManifestItem(pkg)
	if !ok {
		return "", false
	}

	href := item.Href
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	coverPath := path.Join(path.Dir(opfPath), href)

	coverBytes, err := readZipEntry(zr, coverPath)
	if err != nil || len(coverBytes) == 0 {
		return "", false
	}
	return encodeDataURL(item.MediaType, coverBytes), true
}

// coverManifestItem resolves the manifest entry holding the cover image.
func coverManifestItem(pkg packageDoc) (opfItem, bool) {
	var coverID string
	for _, m := range pkg.Metas {
		if strings.EqualFold(strings.TrimSpace(m.Name), "cover") && strings.TrimSpace(m.Content) != "" {
			coverID = strings.TrimSpace(m.Content)
			break
		}
	}

	for _, item := range pkg.Items {
		if coverID != "" && item.ID == coverID {
			return item, true
		}
		if coverID == "" && strings.Contains(item.Properties, "cover-image") {
			return item, true
		}
	}
	return opfItem{}, false
}

// readZipEntry reads one archive entry by name, tolerating a leading "./".
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	name = strings.TrimPrefix(path.Clean(name), "./")
	for _, f := range zr.File {
		if strings.TrimPrefix(path.Clean(f.Name), "./") != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, io.ErrUnexpectedEOF
}

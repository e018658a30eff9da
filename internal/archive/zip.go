package archive

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// storedExts are already-compressed audio formats written without deflate.
var storedExts = map[string]bool{
	"m4a":  true,
	"mp4":  true,
	"aac":  true,
	"mp3":  true,
	"ogg":  true,
	"opus": true,
	"webm": true,
	"flac": true,
}

// WriteZip serializes folders into a ZIP archive in the given order.
func WriteZip(folders []Folder, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, folder := range folders {
		dir := folder.Name + "/"
		if _, err := zw.CreateHeader(&zip.FileHeader{Name: dir, Method: zip.Store, Modified: modified}); err != nil {
			return nil, fmt.Errorf("create folder %s: %w", folder.Name, err)
		}
		if err := writeFile(zw, path.Join(folder.Name, MetadataFile), []byte(folder.Entry.Metadata), zip.Deflate, modified); err != nil {
			return nil, err
		}
		switch {
		case folder.Entry.Audio != nil:
			method := zip.Deflate
			ext := strings.ToLower(strings.TrimPrefix(path.Ext(folder.Entry.Audio.Filename), "."))
			if storedExts[ext] {
				method = zip.Store
			}
			if err := writeFile(zw, path.Join(folder.Name, folder.Entry.Audio.Filename), folder.Entry.Audio.Data, method, modified); err != nil {
				return nil, err
			}
		case folder.Entry.Marker != "":
			if err := writeFile(zw, path.Join(folder.Name, MissingAudioFile), []byte(folder.Entry.Marker), zip.Deflate, modified); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFile(zw *zip.Writer, name string, data []byte, method uint16, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

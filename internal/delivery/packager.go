// Archive packaging and QR access tokens for finished sessions
package delivery

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	errs "photobooth/internal/errors"
	"photobooth/internal/metrics"
)

// Package is the result of one successful packaging
type Package struct {
	ArchiveName string
	ArchivePath string
	URL         string
	TokenPath   string
	Files       []string
}

// Packager zips a session's variants into the public directory and
// encodes the download URL as a QR code
type Packager struct {
	publicDir string
	host      string
	tokenPath string
	qrSize    int
	recorder  *metrics.Recorder
	logger    logrus.FieldLogger

	newName func() string
}

func NewPackager(publicDir, host, tokenPath string, qrSize int, recorder *metrics.Recorder, logger logrus.FieldLogger) *Packager {
	return &Packager{
		publicDir: publicDir,
		host:      host,
		tokenPath: tokenPath,
		qrSize:    qrSize,
		recorder:  recorder,
		logger:    logger,
		newName:   func() string { return uuid.NewString() + ".zip" },
	}
}

// DownloadURL returns the URL under which archiveName is served
func (p *Packager) DownloadURL(archiveName string) string {
	return fmt.Sprintf("http://%s/img/%s", p.host, archiveName)
}

// Package archives every regular file in srcDir and writes the access
// token. On failure no archive is left behind.
func (p *Packager) Package(srcDir string) (*Package, error) {
	pkg, err := p.pack(srcDir)
	p.recorder.RecordArchive(err == nil)
	if err != nil {
		p.logger.WithError(err).WithField("src", srcDir).Error("Packaging failed")
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"archive": pkg.ArchiveName,
		"files":   len(pkg.Files),
		"url":     pkg.URL,
	}).Info("Session packaged")
	return pkg, nil
}

func (p *Packager) pack(srcDir string) (*Package, error) {
	files, err := listFiles(srcDir)
	if err != nil {
		return nil, errs.WrapPackaging(err, "Packager", "Package", "list variants")
	}
	if len(files) == 0 {
		return nil, errs.WrapPackaging(errs.ErrNothingToPack, "Packager", "Package", "list variants")
	}

	if err := os.MkdirAll(p.publicDir, 0o755); err != nil {
		return nil, errs.WrapPackaging(err, "Packager", "Package", "create public directory")
	}

	name := p.newName()
	archivePath := filepath.Join(p.publicDir, name)
	if err := writeArchive(archivePath, srcDir, files); err != nil {
		return nil, errs.WrapPackaging(err, "Packager", "Package", "write archive")
	}

	url := p.DownloadURL(name)
	if err := p.writeToken(url); err != nil {
		os.Remove(archivePath)
		return nil, errs.WrapPackaging(err, "Packager", "Package", "write access token")
	}

	return &Package{
		ArchiveName: name,
		ArchivePath: archivePath,
		URL:         url,
		TokenPath:   p.tokenPath,
		Files:       files,
	}, nil
}

// listFiles returns the names of regular files in dir, sorted
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func writeArchive(archivePath, srcDir string, files []string) (err error) {
	f, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", errs.ErrArchiveExists, archivePath)
		}
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(archivePath)
		}
	}()

	zw := zip.NewWriter(f)
	for _, name := range files {
		if err := addFile(zw, filepath.Join(srcDir, name), name); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func (p *Packager) writeToken(url string) error {
	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0o755); err != nil {
		return err
	}
	return qrcode.WriteFile(url, qrcode.Medium, p.qrSize, p.tokenPath)
}

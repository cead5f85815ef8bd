package asbuilt

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Archive resolves an as-built document id to its content. The id is the
// path fragment extracted from the feature hyperlink, relative to the
// archive root.
type Archive interface {
	Fetch(ctx context.Context, id string) (io.ReadCloser, error)
}

// ErrNotFound reports a document id with no file behind it.
var ErrNotFound = eris.New("asbuilt: document not found")

// DirArchive serves documents from a local directory or mounted share.
type DirArchive struct {
	root string
}

// NewDirArchive creates an archive rooted at dir.
func NewDirArchive(dir string) *DirArchive {
	return &DirArchive{root: dir}
}

func (a *DirArchive) Fetch(_ context.Context, id string) (io.ReadCloser, error) {
	rel, err := cleanID(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(a.root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "asbuilt: open %s", id)
	}
	return f, nil
}

// FTPArchiveOptions configures the FTP archive.
type FTPArchiveOptions struct {
	Timeout time.Duration
}

// FTPArchive serves documents from an FTP server. Each fetch opens its own
// connection; the returned reader releases it on close.
type FTPArchive struct {
	host     string
	basePath string
	opts     FTPArchiveOptions
}

// NewFTPArchive creates an archive from an ftp:// URL whose path is the
// archive root.
func NewFTPArchive(rawURL string, opts FTPArchiveOptions) (*FTPArchive, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	host, basePath, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &FTPArchive{host: host, basePath: basePath, opts: opts}, nil
}

func (a *FTPArchive) Fetch(ctx context.Context, id string) (io.ReadCloser, error) {
	rel, err := cleanID(id)
	if err != nil {
		return nil, err
	}
	remote := path.Join(a.basePath, rel)

	zap.L().Debug("asbuilt: ftp fetch", zap.String("host", a.host), zap.String("path", remote))

	conn, err := ftp.Dial(a.host, ftp.DialWithTimeout(a.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "asbuilt: ftp dial")
	}

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "asbuilt: ftp login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		conn.Quit()
		if strings.Contains(err.Error(), "550") {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "asbuilt: ftp retrieve %s", remote)
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, basePath string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "asbuilt: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("asbuilt: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	return host, u.Path, nil
}

// cleanID normalizes a document id and rejects ids that escape the archive
// root.
func cleanID(id string) (string, error) {
	rel := path.Clean(strings.TrimPrefix(id, "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", eris.Errorf("asbuilt: invalid document id %q", id)
	}
	return rel, nil
}

// ftpConnReader closes the FTP response and disconnects on close.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "asbuilt: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "asbuilt: quit ftp connection")
	}
	return nil
}

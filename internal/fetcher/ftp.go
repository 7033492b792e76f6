package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher. User/Password default to anonymous
// login with a contact identity, which is what public boundary mirrors ask
// for in place of a real account.
type FTPOptions struct {
	Timeout     time.Duration
	User        string
	Password    string
	DisableEPSV bool // some national mapping agency servers only speak PASV
}

// FTPFetcher downloads files over FTP. Some national mapping agencies still
// publish boundary archives on anonymous FTP only.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
	}
	if opts.Password == "" {
		opts.Password = "uhi-cli@"
	}
	return &FTPFetcher{opts: opts}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("empty path in ftp url")
	}

	return host, path, nil
}

// ftpTransfer ties a data transfer to its control connection: closing the
// reader drains the response and quits the session, so an abandoned archive
// download cannot leak a logged-in connection.
type ftpTransfer struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (t *ftpTransfer) Read(p []byte) (int, error) {
	return t.resp.Read(p)
}

func (t *ftpTransfer) Close() error {
	respErr := t.resp.Close()
	if quitErr := t.conn.Quit(); respErr == nil {
		respErr = quitErr
	}
	return eris.Wrap(respErr, "close ftp transfer")
}

// Download logs in, sizes the remote archive when the server supports SIZE,
// and starts the retrieval. The caller must close the returned ReadCloser to
// release the session.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, remotePath, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(f.opts.Timeout),
		ftp.DialWithContext(ctx),
	}
	if f.opts.DisableEPSV {
		dialOpts = append(dialOpts, ftp.DialWithDisabledEPSV(true))
	}

	conn, err := ftp.Dial(host, dialOpts...)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp dial %s", host)
	}

	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrapf(err, "ftp login %s", host)
	}

	if size, sizeErr := conn.FileSize(remotePath); sizeErr == nil {
		zap.L().Info("ftp: archive located",
			zap.String("host", host),
			zap.String("path", remotePath),
			zap.Int64("bytes", size),
		)
	} else {
		zap.L().Debug("ftp: server does not report size",
			zap.String("host", host),
			zap.String("path", remotePath),
		)
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrapf(err, "ftp retrieve %s", remotePath)
	}

	return &ftpTransfer{resp: resp, conn: conn}, nil
}

// DownloadToFile downloads the FTP URL to a local file. Returns bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "create %s", path)
	}
	defer file.Close()

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrapf(err, "write %s", path)
	}

	return n, nil
}

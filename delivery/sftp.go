package delivery

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"vidcrush/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// UploadToSFTP copies the object to a remote server. Required keys: host,
// user, remoteDir and one of password or privateKey (base64 or raw PEM).
// port defaults to 22.
func UploadToSFTP(ctx context.Context, info map[string]string, reader io.Reader) (string, error) {
	host := info["host"]
	port := info["port"]
	if port == "" {
		port = "22"
	}
	user := info["user"]
	remoteDir := info["remoteDir"]

	if host == "" || user == "" || remoteDir == "" {
		return "", fmt.Errorf("missing required accessInfo keys: host, user, remoteDir")
	}

	auths, err := sftpAuth(info)
	if err != nil {
		return "", err
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	addr := net.JoinHostPort(host, port)

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	remotePath := path.Join(remoteDir, objectKey(info))
	if err := mkdirAllSFTP(client, path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("ensure remote dir: %w", err)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}

	logger.Infof("Uploaded '%s' to %s", remotePath, addr)
	return fmt.Sprintf("sftp://%s%s", addr, remotePath), nil
}

func sftpAuth(info map[string]string) ([]ssh.AuthMethod, error) {
	if key := info["privateKey"]; key != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			keyBytes = []byte(key)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if pw := info["password"]; pw != "" {
		return []ssh.AuthMethod{ssh.Password(pw)}, nil
	}
	return nil, fmt.Errorf("no auth method provided; set password or privateKey")
}

// mkdirAllSFTP creates each missing segment of dir on the server.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, p := range strings.Split(dir, "/") {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}

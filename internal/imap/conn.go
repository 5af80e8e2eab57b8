package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/fenilsonani/mailbridge/internal/security"
)

// DefaultConnectTimeout bounds connection establishment.
const DefaultConnectTimeout = 30 * time.Second

// MailboxInfo is one LIST entry.
type MailboxInfo struct {
	Name      string   `json:"name"`
	Delimiter string   `json:"delimiter"`
	Flags     []string `json:"flags"`
}

// MailboxStatus is the result of selecting a mailbox.
type MailboxStatus struct {
	Mailbox     string `json:"mailbox"`
	Exists      uint32 `json:"exists"`
	Recent      uint32 `json:"recent"`
	Unseen      uint32 `json:"unseen"`
	UIDValidity uint32 `json:"uidvalidity"`
}

// FetchedMessage is a raw message with its server flags.
type FetchedMessage struct {
	UID   uint32
	Raw   []byte
	Flags []string
}

// Conn is the protocol session a MailStore drives. UIDs are used throughout.
type Conn interface {
	Login(username, password string) error
	AuthenticatePlain(username, password string) error
	List() ([]MailboxInfo, error)
	Select(mailbox string) (*MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	// Fetch returns nil without error when the UID is absent.
	Fetch(uid uint32, peek bool) (*FetchedMessage, error)
	StoreFlags(uids []uint32, add bool, flags ...imap.Flag) error
	Copy(uids []uint32, mailbox string) error
	Expunge() error
	Append(mailbox string, raw []byte, flags []imap.Flag) (uint32, error)
	Logout() error
	Close() error
}

// Dialer opens protocol sessions.
type Dialer interface {
	Dial(ctx context.Context, server string, port int, useSSL bool) (Conn, error)
}

// NetDialer dials real servers with go-imap's client.
type NetDialer struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Dial connects with implicit TLS when useSSL is set, plaintext otherwise.
func (d *NetDialer) Dial(ctx context.Context, server string, port int, useSSL bool) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	addr := net.JoinHostPort(server, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)
	if useSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: security.ClientTLSConfig(server, d.InsecureSkipVerify)}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	// The greeting is read under the same bound as the dial.
	_ = conn.SetDeadline(time.Now().Add(timeout))
	client := imapclient.New(conn, &imapclient.Options{})
	if err := client.WaitGreeting(); err != nil {
		client.Close()
		return nil, fmt.Errorf("reading IMAP greeting from %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &clientConn{client: client}, nil
}

// clientConn adapts imapclient.Client to Conn.
type clientConn struct {
	client *imapclient.Client
}

func (c *clientConn) Login(username, password string) error {
	return c.client.Login(username, password).Wait()
}

func (c *clientConn) AuthenticatePlain(username, password string) error {
	return c.client.Authenticate(sasl.NewPlainClient("", username, password))
}

func (c *clientConn) List() ([]MailboxInfo, error) {
	data, err := c.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, err
	}

	out := make([]MailboxInfo, 0, len(data))
	for _, mbox := range data {
		info := MailboxInfo{
			Name:  strings.ToValidUTF8(mbox.Mailbox, string(utf8.RuneError)),
			Flags: make([]string, 0, len(mbox.Attrs)),
		}
		if mbox.Delim != 0 {
			info.Delimiter = string(mbox.Delim)
		}
		for _, attr := range mbox.Attrs {
			info.Flags = append(info.Flags, string(attr))
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *clientConn) Select(mailbox string) (*MailboxStatus, error) {
	data, err := c.client.Select(mailbox, nil).Wait()
	if err != nil {
		return nil, err
	}

	status := &MailboxStatus{
		Mailbox:     mailbox,
		Exists:      data.NumMessages,
		UIDValidity: data.UIDValidity,
	}

	// SELECT no longer reports an unseen count in IMAP4rev2.
	if st, err := c.client.Status(mailbox, &imap.StatusOptions{NumUnseen: true}).Wait(); err == nil && st.NumUnseen != nil {
		status.Unseen = *st.NumUnseen
	}
	return status, nil
}

func (c *clientConn) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}

	uids := data.AllUIDs()
	out := make([]uint32, len(uids))
	for i, uid := range uids {
		out[i] = uint32(uid)
	}
	return out, nil
}

func (c *clientConn) Fetch(uid uint32, peek bool) (*FetchedMessage, error) {
	section := &imap.FetchItemBodySection{Peek: peek}
	options := &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	msgs, err := c.client.Fetch(imap.UIDSetNum(imap.UID(uid)), options).Collect()
	if err != nil {
		return nil, err
	}

	for _, msg := range msgs {
		if uint32(msg.UID) != uid {
			continue
		}
		fetched := &FetchedMessage{
			UID:   uid,
			Raw:   msg.FindBodySection(section),
			Flags: make([]string, 0, len(msg.Flags)),
		}
		for _, f := range msg.Flags {
			fetched.Flags = append(fetched.Flags, string(f))
		}
		return fetched, nil
	}
	return nil, nil
}

func (c *clientConn) StoreFlags(uids []uint32, add bool, flags ...imap.Flag) error {
	op := imap.StoreFlagsAdd
	if !add {
		op = imap.StoreFlagsDel
	}
	return c.client.Store(uidSet(uids), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil).Close()
}

func (c *clientConn) Copy(uids []uint32, mailbox string) error {
	_, err := c.client.Copy(uidSet(uids), mailbox).Wait()
	return err
}

func (c *clientConn) Expunge() error {
	return c.client.Expunge().Close()
}

func (c *clientConn) Append(mailbox string, raw []byte, flags []imap.Flag) (uint32, error) {
	cmd := c.client.Append(mailbox, int64(len(raw)), &imap.AppendOptions{Flags: flags})
	if _, err := cmd.Write(raw); err != nil {
		cmd.Close()
		return 0, fmt.Errorf("writing message: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return 0, err
	}
	data, err := cmd.Wait()
	if err != nil {
		return 0, err
	}
	return uint32(data.UID), nil
}

func (c *clientConn) Logout() error {
	return c.client.Logout().Wait()
}

func (c *clientConn) Close() error {
	return c.client.Close()
}

func uidSet(uids []uint32) imap.UIDSet {
	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}
	return imap.UIDSetNum(set...)
}

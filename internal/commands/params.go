package commands

// Tool names accepted by Execute.
const (
	ToolIMAP    = "imap"
	ToolSMTP    = "smtp"
	ToolProfile = "profile"
	ToolAudit   = "audit"
)

// Version is stamped at build time.
var Version = "dev"

// Parameter types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Param describes one command argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default"`
}

// Command describes one command of a tool.
type Command struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  []Param `json:"parameters"`
}

// Plugin identifies a tool.
type Plugin struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Description is the self-description printed by --describe.
type Description struct {
	Plugin   Plugin    `json:"plugin"`
	Commands []Command `json:"commands"`
}

func str(name, desc string) Param { return Param{Name: name, Type: TypeString, Description: desc} }

func required(p Param) Param {
	p.Required = true
	return p
}

func withDefault(p Param, def any) Param {
	p.Default = def
	return p
}

var (
	accountParam = str("account", "Stored profile to connect with")
	mailboxParam = str("mailbox", "Mailbox to select first (default: current, else INBOX)")
	sandboxParam = Param{Name: "sandbox", Type: TypeBoolean, Description: "Report what would happen without changing anything", Default: false}
	idsParam     = required(Param{Name: "message_ids", Type: TypeArray, Description: "Message UIDs"})
	idParam      = required(str("message_id", "Message UID"))
)

func imapConnection() []Param {
	return []Param{
		accountParam,
		str("server", "IMAP server host"),
		str("username", "Login name (env IMAP_USERNAME)"),
		str("password", "Password (env IMAP_PASSWORD)"),
		{Name: "port", Type: TypeInteger, Description: "IMAP port", Default: 993},
		{Name: "use_ssl", Type: TypeBoolean, Description: "Use implicit TLS", Default: true},
	}
}

func smtpConnection() []Param {
	return []Param{
		accountParam,
		str("server", "SMTP server host"),
		str("username", "Login name (env SMTP_USERNAME, IMAP_USERNAME)"),
		str("password", "Password (env SMTP_PASSWORD, IMAP_PASSWORD)"),
		{Name: "port", Type: TypeInteger, Description: "SMTP port", Default: 587},
		{Name: "use_tls", Type: TypeBoolean, Description: "Use TLS (implicit on 465, STARTTLS otherwise)", Default: true},
		str("imap_server", "IMAP server for the sent-folder copy"),
		{Name: "imap_port", Type: TypeInteger, Description: "IMAP port for the sent-folder copy"},
		{Name: "imap_ssl", Type: TypeBoolean, Description: "Use implicit TLS for the sent-folder copy"},
	}
}

func with(base []Param, extra ...Param) []Param {
	out := make([]Param, 0, len(base)+len(extra))
	out = append(out, extra...)
	return append(out, base...)
}

func recipients() []Param {
	return []Param{
		required(Param{Name: "to", Type: TypeArray, Description: "Recipient addresses"}),
		required(str("subject", "Subject line")),
		str("from", "Sender address (default: username)"),
		{Name: "cc", Type: TypeArray, Description: "Carbon-copy addresses"},
		{Name: "bcc", Type: TypeArray, Description: "Blind carbon-copy addresses"},
		str("reply_to", "Reply-To address"),
	}
}

var imapCommands = []Command{
	{Name: "connect", Description: "Open a persistent IMAP session", Parameters: imapConnection()},
	{Name: "disconnect", Description: "Close the IMAP session"},
	{Name: "list-mailboxes", Description: "List mailboxes", Parameters: imapConnection()},
	{Name: "select-mailbox", Description: "Select a mailbox", Parameters: with(imapConnection(),
		required(str("mailbox", "Mailbox name")),
	)},
	{Name: "search", Description: "Search the mailbox", Parameters: with(imapConnection(),
		withDefault(str("criteria", "Search criteria"), "ALL"),
		mailboxParam,
	)},
	{Name: "fetch", Description: "Fetch and normalize one message", Parameters: with(imapConnection(),
		idParam,
		Param{Name: "max_body_bytes", Type: TypeInteger, Description: "Body size limit in bytes"},
		Param{Name: "max_attachment_bytes", Type: TypeInteger, Description: "Attachment content limit in bytes"},
		Param{Name: "peek", Type: TypeBoolean, Description: "Fetch without setting \\Seen", Default: false},
		mailboxParam,
	)},
	{Name: "mark-read", Description: "Set \\Seen on messages", Parameters: with(imapConnection(),
		idsParam, sandboxParam, mailboxParam,
	)},
	{Name: "mark-unread", Description: "Clear \\Seen on messages", Parameters: with(imapConnection(),
		idsParam, sandboxParam, mailboxParam,
	)},
	{Name: "delete", Description: "Delete and expunge messages", Parameters: with(imapConnection(),
		idsParam, sandboxParam, mailboxParam,
	)},
	{Name: "move", Description: "Move messages to another mailbox", Parameters: with(imapConnection(),
		idsParam,
		required(str("target_mailbox", "Destination mailbox")),
		sandboxParam, mailboxParam,
	)},
	{Name: "export", Description: "Write the raw message into a local Maildir", Parameters: with(imapConnection(),
		idParam,
		required(str("maildir", "Maildir directory")),
		mailboxParam,
	)},
}

var smtpCommands = []Command{
	{Name: "connect", Description: "Open a persistent SMTP session", Parameters: smtpConnection()},
	{Name: "disconnect", Description: "Close the SMTP session"},
	{Name: "send", Description: "Send a plain text email", Parameters: with(smtpConnection(),
		append(recipients(), required(str("body", "Message body")))...,
	)},
	{Name: "send-html", Description: "Send an HTML email", Parameters: with(smtpConnection(),
		append(recipients(),
			required(str("html_body", "HTML body")),
			str("text_body", "Plain text alternative"),
		)...,
	)},
	{Name: "send-with-attachment", Description: "Send an email with file attachments", Parameters: with(smtpConnection(),
		append(recipients(),
			required(str("body", "Message body")),
			required(Param{Name: "attachments", Type: TypeArray, Description: "File paths to attach"}),
			Param{Name: "html", Type: TypeBoolean, Description: "Body is HTML", Default: false},
		)...,
	)},
}

var profileCommands = []Command{
	{Name: "list", Description: "List stored profiles"},
	{Name: "add", Description: "Add or replace a profile", Parameters: []Param{
		required(str("name", "Profile name")),
		required(str("imap_server", "IMAP server host")),
		required(str("smtp_server", "SMTP server host")),
		required(str("username", "Login name")),
		required(str("password", "Password")),
		{Name: "imap_port", Type: TypeInteger, Description: "IMAP port", Default: 993},
		{Name: "smtp_port", Type: TypeInteger, Description: "SMTP port", Default: 587},
		{Name: "imap_ssl", Type: TypeBoolean, Description: "Use implicit TLS for IMAP", Default: true},
		{Name: "smtp_tls", Type: TypeBoolean, Description: "Use TLS for SMTP", Default: true},
		{Name: "set_default", Type: TypeBoolean, Description: "Make this the default profile", Default: false},
	}},
	{Name: "remove", Description: "Remove a profile", Parameters: []Param{required(str("name", "Profile name"))}},
	{Name: "set-default", Description: "Set the default profile", Parameters: []Param{required(str("name", "Profile name"))}},
	{Name: "show", Description: "Show a profile (default: the default profile)", Parameters: []Param{str("name", "Profile name")}},
}

var auditCommands = []Command{
	{Name: "list", Description: "List recorded mailbox changes, newest first", Parameters: []Param{
		str("actor", "Only events run as this username"),
		str("action", "Only events of this action (imap.mark_read, imap.mark_unread, imap.delete, imap.move)"),
		str("mailbox", "Only events in this mailbox"),
		{Name: "limit", Type: TypeInteger, Description: "Maximum number of events", Default: 100},
	}},
}

var plugins = map[string]Plugin{
	ToolIMAP:    {Name: "imap", Description: "Read and manage mail over IMAP"},
	ToolSMTP:    {Name: "smtp", Description: "Send mail over SMTP"},
	ToolProfile: {Name: "profile", Description: "Manage stored account profiles"},
	ToolAudit:   {Name: "audit", Description: "Inspect the audit log of mailbox changes"},
}

// Commands returns the command table of tool, or nil for an unknown tool.
func Commands(tool string) []Command {
	switch tool {
	case ToolIMAP:
		return imapCommands
	case ToolSMTP:
		return smtpCommands
	case ToolProfile:
		return profileCommands
	case ToolAudit:
		return auditCommands
	}
	return nil
}

// Describe returns the self-description of tool.
func Describe(tool string) (Description, bool) {
	p, ok := plugins[tool]
	if !ok {
		return Description{}, false
	}
	p.Version = Version

	cmds := make([]Command, len(Commands(tool)))
	copy(cmds, Commands(tool))
	for i := range cmds {
		if cmds[i].Parameters == nil {
			cmds[i].Parameters = []Param{}
		}
	}
	return Description{Plugin: p, Commands: cmds}, true
}

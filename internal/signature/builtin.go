package signature

// Attack family names used by the builtin set
const (
	SQLInjection       = "SQL Injection"
	XSS                = "Cross-Site Scripting"
	DirectoryTraversal = "Directory Traversal"
	CommandInjection   = "Command Injection"
	SSRF               = "Server-Side Request Forgery"
	LFI                = "Local File Inclusion"
	RFI                = "Remote File Inclusion"
	XXE                = "XML External Entity"
	Webshell           = "Webshell"
	CredentialStuffing = "Credential Stuffing"
)

// Builtin returns the seeded signature set. Weights are tuned so that a
// single strong indicator plus the base lands in the high bucket and
// stacked indicators clamp toward 100.
func Builtin() []Signature {
	return []Signature{
		{
			Name: SQLInjection,
			Base: 40,
			Rules: []Rule{
				{Pattern: `(?i)('|%27)(\s|%20|\+)*(or|and)(\s|%20|\+)*('|%27)?\w`, Weight: 30},
				{Pattern: `(?i)('|%27)(\s|%20)*=(\s|%20)*('|%27)`, Weight: 15},
				{Pattern: `(?i)union(\s|%20|\+)+(all(\s|%20|\+)+)?select`, Weight: 35},
				{Pattern: `(?i)(sleep|benchmark|waitfor|pg_sleep)(\s|%20)*\(`, Weight: 30},
				{Pattern: `(?i)(select|insert|update|delete|drop)\s+[\w*,\s]+\s(from|into|table)\b`, Weight: 25},
				{Pattern: `(--|%2D%2D|#|/\*)\s*$`, Weight: 15},
				{Pattern: `(?i)sqlmap`, Weight: 40, Targets: []Target{TargetHeader}},
			},
		},
		{
			Name: XSS,
			Base: 40,
			Rules: []Rule{
				{Pattern: `(?i)(<|%3C)\s*script`, Weight: 30},
				{Pattern: `(?i)\bon(error|load|mouseover|focus|click)\s*=`, Weight: 25},
				{Pattern: `(?i)javascript\s*:`, Weight: 25},
				{Pattern: `(?i)(<|%3C)\s*(img|svg|iframe|embed|object)\b`, Weight: 20},
				{Pattern: `(?i)(alert|prompt|confirm)\s*\(`, Weight: 15},
				{Pattern: `(?i)document\.(cookie|location|write)`, Weight: 25},
			},
		},
		{
			Name: DirectoryTraversal,
			Base: 45,
			Rules: []Rule{
				{Pattern: `(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f)`, Weight: 30},
				{Pattern: `(?i)/etc/(passwd|shadow|hosts|group)`, Weight: 30},
				{Pattern: `(?i)(boot\.ini|win\.ini|system32|%windir%)`, Weight: 25},
				{Pattern: `(?i)/proc/self/`, Weight: 25},
			},
		},
		{
			Name: CommandInjection,
			Base: 45,
			Rules: []Rule{
				{Pattern: `(?i)(;|\||&&|%3B|%7C)(\s|%20)*(cat|ls|id|whoami|uname|wget|curl|nc|ping)\b`, Weight: 35},
				{Pattern: "`[^`]+`", Weight: 15},
				{Pattern: `\$\([^)]+\)`, Weight: 25},
				{Pattern: `(?i)(/bin/(ba|da|z)?sh|cmd(\.exe)?(\s|%20)*/c|powershell)`, Weight: 30},
			},
		},
		{
			Name: SSRF,
			Base: 40,
			Rules: []Rule{
				{Pattern: `(?i)(https?|gopher|dict|ftp)://(127\.0\.0\.1|localhost|0\.0\.0\.0|\[?::1)`, Weight: 35},
				{Pattern: `169\.254\.169\.254`, Weight: 40},
				{Pattern: `(?i)(url|uri|target|dest|redirect|callback)=(https?|gopher|dict)(:|%3A)`, Weight: 20},
				{Pattern: `(?i)file://`, Weight: 30},
			},
		},
		{
			Name: LFI,
			Base: 45,
			Rules: []Rule{
				{Pattern: `(?i)(file|page|include|path|template|doc)=[^&]*(\.\./|/etc/|/proc/|/var/log/)`, Weight: 30},
				{Pattern: `(?i)php://(filter|input|data)`, Weight: 35},
				{Pattern: `(?i)(expect|zip|phar)://`, Weight: 30},
				{Pattern: `%00`, Weight: 20},
			},
		},
		{
			Name: RFI,
			Base: 45,
			Rules: []Rule{
				{Pattern: `(?i)(file|page|include|src|template)=(https?|ftp)(:|%3A)//`, Weight: 30},
				{Pattern: `(?i)=(https?|ftp)://[^&]+\.(txt|php)(\?|%3F)?`, Weight: 25},
				{Pattern: `(?i)data:text/plain;base64`, Weight: 30},
			},
		},
		{
			Name: XXE,
			Base: 50,
			Rules: []Rule{
				{Pattern: `(?i)<!DOCTYPE[^>]+\[`, Weight: 25},
				{Pattern: `(?i)<!ENTITY`, Weight: 35},
				{Pattern: `(?i)SYSTEM(\s|%20)+("|')(file|https?|expect)`, Weight: 30},
			},
		},
		{
			Name: Webshell,
			Base: 50,
			Rules: []Rule{
				{Pattern: `(?i)/(c99|r57|b374k|wso|alfa|webshell|shell|backdoor)\.(php|jsp|asp|aspx)`, Weight: 35},
				{Pattern: `(?i)eval(\s|%20)*\((\s|%20)*(base64_decode|gzinflate|str_rot13)`, Weight: 40},
				{Pattern: `(?i)(cmd|exec|command)=[^&]+`, Weight: 15},
				{Pattern: `(?i)php_uname|passthru|shell_exec`, Weight: 30},
			},
		},
		{
			Name: CredentialStuffing,
			Base: 30,
			Rules: []Rule{
				{Pattern: `(?i)(username|user|email|login)=[^&]+&(password|passwd|pass|pwd)=`, Weight: 25, Targets: []Target{TargetQuery, TargetBody}},
				{Pattern: `(?i)(password|passwd|pwd)=(123456|password|qwerty|admin|letmein|12345678|welcome)(&|$)`, Weight: 35, Targets: []Target{TargetQuery, TargetBody}},
				{Pattern: `(?i)grant_type=password`, Weight: 15, Targets: []Target{TargetQuery, TargetBody}},
			},
		},
	}
}

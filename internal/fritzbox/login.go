package fritzbox

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/encoding/unicode"
)

// SessionInfo is the document returned by login_sid.lua.
type SessionInfo struct {
	XMLName   xml.Name `xml:"SessionInfo"`
	SID       string   `xml:"SID"`
	Challenge string   `xml:"Challenge"`
	BlockTime int      `xml:"BlockTime"`
	Users     []string `xml:"Users>User"`
}

// login runs the login_sid.lua challenge/response and returns a session id.
func login(ctx context.Context, client *http.Client, opts Options) (string, error) {
	endpoint := baseURL(opts.Host, opts.WebPort) + "/login_sid.lua?version=2"

	body, err := get(ctx, client, endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	info, err := parseSessionInfo(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if info.SID != invalidSID {
		return info.SID, nil
	}

	if info.BlockTime > 0 {
		return "", fmt.Errorf("%w: logins blocked for %d seconds", ErrSecurity, info.BlockTime)
	}

	response, err := challengeResponse(info.Challenge, opts.Password)
	if err != nil {
		return "", err
	}

	username := opts.Username
	if username == "" && len(info.Users) > 0 {
		username = info.Users[0]
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("response", response)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err = do(client, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	info, err = parseSessionInfo(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if info.SID == invalidSID {
		return "", fmt.Errorf("%w: invalid username or password", ErrSecurity)
	}

	return info.SID, nil
}

func parseSessionInfo(body []byte) (*SessionInfo, error) {
	var info SessionInfo
	if err := xml.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("invalid session info: %w", err)
	}
	if info.SID == "" {
		return nil, fmt.Errorf("session info has no SID")
	}
	return &info, nil
}

// challengeResponse answers either a PBKDF2 ("2$...") or a legacy MD5 challenge.
func challengeResponse(challenge, password string) (string, error) {
	if strings.HasPrefix(challenge, "2$") {
		return pbkdf2Response(challenge, password)
	}
	return md5Response(challenge, password)
}

// pbkdf2Response implements the version 2 scheme:
// challenge = 2$<iter1>$<salt1>$<iter2>$<salt2>.
func pbkdf2Response(challenge, password string) (string, error) {
	parts := strings.Split(challenge, "$")
	if len(parts) != 5 {
		return "", fmt.Errorf("malformed PBKDF2 challenge %q", challenge)
	}

	iter1, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("malformed PBKDF2 challenge iterations: %w", err)
	}
	salt1, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("malformed PBKDF2 challenge salt: %w", err)
	}
	iter2, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", fmt.Errorf("malformed PBKDF2 challenge iterations: %w", err)
	}
	salt2, err := hex.DecodeString(parts[4])
	if err != nil {
		return "", fmt.Errorf("malformed PBKDF2 challenge salt: %w", err)
	}

	hash1 := pbkdf2.Key([]byte(password), salt1, iter1, sha256.Size, sha256.New)
	hash2 := pbkdf2.Key(hash1, salt2, iter2, sha256.Size, sha256.New)

	return parts[4] + "$" + hex.EncodeToString(hash2), nil
}

// md5Response implements the legacy scheme: challenge-md5(utf16le(challenge-password)).
// Characters above U+00FF are replaced by '.' before hashing.
func md5Response(challenge, password string) (string, error) {
	var b strings.Builder
	for _, r := range challenge + "-" + password {
		if r > 0xFF {
			r = '.'
		}
		b.WriteRune(r)
	}

	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(b.String())
	if err != nil {
		return "", fmt.Errorf("encoding login response: %w", err)
	}

	sum := md5.Sum([]byte(encoded))
	return challenge + "-" + hex.EncodeToString(sum[:]), nil
}

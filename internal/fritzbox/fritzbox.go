// Package fritzbox opens an authenticated connection to an AVM FRITZ!Box.
//
// Connecting is two requests: the TR-064 device description (which tells us
// model, serial number and UPnP UDN and proves the box is reachable) and a
// login against login_sid.lua, which proves the credentials.
package fritzbox

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Errors returned by Connect. Callers classify failures with errors.Is.
var (
	// ErrConnection means the box could not be reached or did not answer like a FRITZ!Box.
	ErrConnection = errors.New("fritzbox: connection failed")

	// ErrSecurity means the box rejected the credentials or is blocking logins.
	ErrSecurity = errors.New("fritzbox: authentication rejected")
)

const (
	// DefaultHost is the address FRITZ!Boxes answer on out of the box.
	DefaultHost = "192.168.178.1"

	// DefaultPort is the TR-064 port.
	DefaultPort = 49000

	// DefaultWebPort is the port of the web interface serving login_sid.lua.
	DefaultWebPort = 80

	// DefaultTimeout bounds each request made by Connect.
	DefaultTimeout = 10 * time.Second

	invalidSID = "0000000000000000"
)

// Options configures Connect.
type Options struct {
	Host     string
	Port     int
	WebPort  int
	Username string
	Password string
	Timeout  time.Duration

	// HTTPClient overrides the client used for all requests.
	HTTPClient *http.Client
}

// Device is a reachable, authenticated FRITZ!Box.
type Device struct {
	Host         string
	Port         int
	FriendlyName string
	Manufacturer string
	Model        string
	SerialNumber string
	UDN          string
	SessionID    string
}

// UniqueID returns the UDN without its "uuid:" prefix
func (d *Device) UniqueID() string {
	return strings.TrimPrefix(d.UDN, "uuid:")
}

// Connector opens connections. It exists so flows can be tested without a box.
type Connector interface {
	Connect(ctx context.Context, opts Options) (*Device, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, opts Options) (*Device, error)

func (f ConnectorFunc) Connect(ctx context.Context, opts Options) (*Device, error) {
	return f(ctx, opts)
}

// DefaultConnector talks to real devices.
var DefaultConnector Connector = ConnectorFunc(Connect)

// tr64Description is the subset of tr64desc.xml we read.
type tr64Description struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		SerialNumber string `xml:"serialNumber"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// Connect reads the device description and logs in.
func Connect(ctx context.Context, opts Options) (*Device, error) {
	opts = withDefaults(opts)

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	desc, err := fetchDescription(ctx, client, opts)
	if err != nil {
		return nil, err
	}

	device := &Device{
		Host:         opts.Host,
		Port:         opts.Port,
		FriendlyName: desc.Device.FriendlyName,
		Manufacturer: desc.Device.Manufacturer,
		Model:        desc.Device.ModelName,
		SerialNumber: desc.Device.SerialNumber,
		UDN:          desc.Device.UDN,
	}

	// Without a password there is nothing to prove; the box will ask
	// again on the first authenticated action.
	if opts.Password == "" {
		return device, nil
	}

	sid, err := login(ctx, client, opts)
	if err != nil {
		return nil, err
	}
	device.SessionID = sid

	return device, nil
}

func withDefaults(opts Options) Options {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.WebPort == 0 {
		opts.WebPort = DefaultWebPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return opts
}

func baseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func fetchDescription(ctx context.Context, client *http.Client, opts Options) (*tr64Description, error) {
	url := baseURL(opts.Host, opts.Port) + "/tr64desc.xml"

	body, err := get(ctx, client, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	var desc tr64Description
	if err := xml.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("%w: invalid device description: %v", ErrConnection, err)
	}

	if desc.Device.ModelName == "" && desc.Device.UDN == "" {
		return nil, fmt.Errorf("%w: device description has no device", ErrConnection)
	}

	return &desc, nil
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode)
	}

	return body, nil
}

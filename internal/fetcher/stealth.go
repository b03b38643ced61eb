package fetcher

import (
	"crypto/tls"
	"fmt"
	"math/rand"
)

// StealthConfig describes the browser fingerprint a hardened session
// presents.
type StealthConfig struct {
	UserAgent string

	ViewportWidth  int
	ViewportHeight int

	// WindowSize is passed to the browser launcher as "w,h".
	WindowSize string

	Language            string
	Platform            string
	HardwareConcurrency int
	DeviceMemory        int
}

// NewStealthConfig picks a realistic desktop fingerprint. The user agent is
// drawn from userAgents; width and height fall back to a random common
// desktop viewport when zero.
func NewStealthConfig(userAgents []string, width, height int) *StealthConfig {
	if width <= 0 || height <= 0 {
		viewports := []struct{ w, h int }{
			{1920, 1080}, {1366, 768}, {1536, 864},
			{1440, 900}, {1280, 720},
		}
		vp := viewports[rand.Intn(len(viewports))]
		width, height = vp.w, vp.h
	}

	platforms := []string{"Win32", "MacIntel", "Linux x86_64"}

	sc := &StealthConfig{
		ViewportWidth:       width,
		ViewportHeight:      height,
		WindowSize:          fmt.Sprintf("%d,%d", width, height),
		Language:            "en-US",
		Platform:            platforms[rand.Intn(len(platforms))],
		HardwareConcurrency: 4 + rand.Intn(13), // 4-16 cores
		DeviceMemory:        8,
	}
	if len(userAgents) > 0 {
		sc.UserAgent = userAgents[rand.Intn(len(userAgents))]
	}
	return sc
}

// StealthJS returns a script that hides automation markers. It is
// evaluated on every new document before page scripts run.
func (sc *StealthConfig) StealthJS() string {
	return fmt.Sprintf(`
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'language', { get: () => '%s' });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', 'en'] });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });

window.chrome = window.chrome || {
	runtime: { onMessage: { addListener: () => {} }, sendMessage: () => {} },
	loadTimes: () => ({}),
	csi: () => ({}),
};

const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
if (originalQuery) {
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
}

Object.defineProperty(navigator, 'plugins', {
	get: () => {
		const plugins = [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' },
		];
		plugins.length = 3;
		return plugins;
	}
});
`, sc.Platform, sc.Language, sc.Language, sc.HardwareConcurrency, sc.DeviceMemory)
}

// randomTLSConfig returns a TLS config whose cipher order matches either a
// Chrome or a Firefox client hello.
func randomTLSConfig(insecure bool) *tls.Config {
	cipherSuites := [][]uint16{
		{ // Chrome
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		{ // Firefox
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
	}

	return &tls.Config{
		CipherSuites:       cipherSuites[rand.Intn(len(cipherSuites))],
		MinVersion:         tls.VersionTLS12,
		MaxVersion:         tls.VersionTLS13,
		CurvePreferences:   []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
		InsecureSkipVerify: insecure,
	}
}

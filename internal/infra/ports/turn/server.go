// Package turn - встроенный TURN сервер на pion/turn и временные креды в схеме coturn use-auth-secret.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pion/turn/v4"

	"github.com/qrave1/PairCall/internal/application/constant"
)

// Credentials - username = unix-время истечения, пароль = base64(HMAC-SHA1(secret, username))
func Credentials(secret string, expires time.Time) (string, string) {
	username := strconv.FormatInt(expires.Unix(), 10)

	return username, sign(secret, username)
}

func sign(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// expiry разбирает username вида "<unix>" или "<unix>:<ref>"
func expiry(username string) (time.Time, bool) {
	ts, _, _ := strings.Cut(username, ":")

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(sec, 0), true
}

type ServerConfig struct {
	PublicIP string
	Port     int
	Realm    string
	Secret   string
}

// authHandler пускает только с неистёкшими кредами, подписанными общим секретом
func authHandler(secret, realm string, now func() time.Time) func(string, string, net.Addr) ([]byte, bool) {
	return func(username, _ string, srcAddr net.Addr) ([]byte, bool) {
		expires, ok := expiry(username)
		if !ok || now().After(expires) {
			slog.Debug("turn auth rejected", slog.String("username", username), slog.String("src", srcAddr.String()))
			return nil, false
		}

		return turn.GenerateAuthKey(username, realm, sign(secret, username)), true
	}
}

// Start поднимает TURN на UDP и TCP одного порта
func Start(cfg ServerConfig) (*turn.Server, error) {
	addr := fmt.Sprintf(":%d", cfg.Port)

	udpListener, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("udp listen: %w", err)
	}

	tcpListener, err := net.Listen("tcp4", addr)
	if err != nil {
		_ = udpListener.Close()
		return nil, fmt.Errorf("tcp listen: %w", err)
	}

	relayAddressGenerator := &turn.RelayAddressGeneratorStatic{
		RelayAddress: net.ParseIP(cfg.PublicIP),
		Address:      "0.0.0.0",
	}

	server, err := turn.NewServer(turn.ServerConfig{
		Realm:       cfg.Realm,
		AuthHandler: authHandler(cfg.Secret, cfg.Realm, time.Now),
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn:            udpListener,
				RelayAddressGenerator: relayAddressGenerator,
			},
		},
		ListenerConfigs: []turn.ListenerConfig{
			{
				Listener:              tcpListener,
				RelayAddressGenerator: relayAddressGenerator,
			},
		},
	})
	if err != nil {
		_ = udpListener.Close()
		_ = tcpListener.Close()
		return nil, fmt.Errorf("new turn server: %w", err)
	}

	slog.Info(
		"TURN server started",
		slog.String("public_ip", cfg.PublicIP),
		slog.Int("port", cfg.Port),
		slog.String("realm", cfg.Realm),
	)

	return server, nil
}

// Stop закрывает сервер и логирует ошибку
func Stop(server *turn.Server) {
	if err := server.Close(); err != nil {
		slog.Error("close turn server", slog.Any(constant.Error, err))
	}
}

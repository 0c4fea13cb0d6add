package engine

import (
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/pion/ion-ortc/pkg/logger"
	"github.com/pion/turn/v2"
)

var errNoTurnAuth = errors.New("no turn auth provided")

// TurnConfig configures the embedded TURN server.
type TurnConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Realm       string   `mapstructure:"realm"`
	Address     string   `mapstructure:"address"`
	Credentials string   `mapstructure:"credentials"`
	PortRange   []uint16 `mapstructure:"portrange"`
}

// TurnAuth authorizes a TURN allocation, returning the user's key.
type TurnAuth func(username, realm string, srcAddr net.Addr) ([]byte, bool)

func initTurnServer(conf TurnConfig, auth TurnAuth) (*turn.Server, error) {
	if auth == nil {
		usersMap := map[string][]byte{}
		for _, kv := range regexp.MustCompile(`(\w+)=(\w+)`).FindAllStringSubmatch(conf.Credentials, -1) {
			usersMap[kv[1]] = turn.GenerateAuthKey(kv[1], conf.Realm, kv[2])
		}
		if len(usersMap) == 0 {
			return nil, errNoTurnAuth
		}
		auth = func(username string, realm string, srcAddr net.Addr) ([]byte, bool) {
			if key, ok := usersMap[username]; ok {
				return key, true
			}
			return nil, false
		}
	}

	// pion/turn doesn't allocate the listening socket itself
	udpListener, err := net.ListenPacket("udp4", conf.Address)
	if err != nil {
		return nil, err
	}

	// announce the configured ip, listen on every interface
	relayIP := net.ParseIP(strings.Split(conf.Address, ":")[0])
	var generator turn.RelayAddressGenerator = &turn.RelayAddressGeneratorStatic{
		RelayAddress: relayIP,
		Address:      "0.0.0.0",
	}
	if len(conf.PortRange) == 2 {
		generator = &turn.RelayAddressGeneratorPortRange{
			RelayAddress: relayIP,
			Address:      "0.0.0.0",
			MinPort:      conf.PortRange[0],
			MaxPort:      conf.PortRange[1],
		}
	}

	return turn.NewServer(turn.ServerConfig{
		Realm:         conf.Realm,
		AuthHandler:   turn.AuthHandler(auth),
		LoggerFactory: logger.LoggerFactory{Logger: Logger.WithName("turn")},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn:            udpListener,
				RelayAddressGenerator: generator,
			},
		},
	})
}

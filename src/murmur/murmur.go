// Package murmur assembles a complete node from the engine, its key, its
// socket, and the HTTP service.
package murmur

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/service"
)

// Murmur is a gossip node: the engine plus its operational surface.
type Murmur struct {
	Config  *config.Config
	Key     *keys.KeyPair
	Engine  *gossip.Engine
	Service *service.Service

	conn *net.UDPConn
}

// NewMurmur returns an uninitialized node with the given configuration.
func NewMurmur(conf *config.Config) *Murmur {
	return &Murmur{
		Config: conf,
	}
}

func (m *Murmur) initKey() error {
	keyfile := keys.NewKeyfile(m.Config.Keyfile())

	key, err := keyfile.Load()
	if err != nil {
		m.Config.Logger().WithError(err).Warn("Cannot read private key from file, generating a new one")

		key, err = keys.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := keyfile.Save(key); err != nil {
			return err
		}

		m.Config.Logger().WithField("pubkey", common.EncodeToString(key.Public)).Info("Created a new key")
	}

	m.Key = key
	return nil
}

func (m *Murmur) initSocket() error {
	bindAddr, err := m.Config.BindUDPAddr()
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", bindAddr)
	if err != nil {
		return err
	}

	m.conn = conn
	return nil
}

func (m *Murmur) initEngine() error {
	advertise, err := m.Config.AdvertiseUDPAddr()
	if err != nil {
		return err
	}

	entrypoints, err := m.Config.EntrypointUDPAddrs()
	if err != nil {
		return err
	}

	m.Engine = gossip.NewEngine(
		&gossip.Config{
			Logger:        m.Config.Logger(),
			ShredVersion:  m.Config.ShredVersion,
			Entrypoints:   entrypoints,
			AdvertiseAddr: advertise,
		},
		m.Key,
		m.conn,
	)

	return nil
}

func (m *Murmur) initService() error {
	if !m.Config.NoService {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Engine, m.Config.Logger())
	}
	return nil
}

// Init initializes the node components in order: key, socket, engine,
// service.
func (m *Murmur) Init() error {
	if err := m.initKey(); err != nil {
		return err
	}

	if err := m.initSocket(); err != nil {
		return err
	}

	if err := m.initEngine(); err != nil {
		return err
	}

	if err := m.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the service and the engine, and blocks until the engine stops,
// either on its own or on SIGINT/SIGTERM.
func (m *Murmur) Run() {
	if m.Service != nil {
		go m.Service.Serve()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		m.Config.Logger().Debug("Reacting to signal - shutdown")
		m.Engine.Shutdown()
	}()

	m.Engine.Run()

	m.conn.Close()
}

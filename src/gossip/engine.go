package gossip

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/murmur/src/channel"
	"github.com/mosaicnetworks/murmur/src/crds"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/protocol"
	"github.com/sirupsen/logrus"
)

// Config contains the engine-level configuration. The murmur package builds
// one of these from the application-level config.
type Config struct {
	// Logger receives the engine's output. A default logger is created when
	// nil.
	Logger *logrus.Entry

	// ShredVersion is the cluster epoch tag advertised in our contact info.
	// When it is non-zero, peers advertising a different shred version are
	// ignored; zero accepts any peer.
	ShredVersion uint16

	// Entrypoints are gossip endpoints used to join the cluster: they
	// receive an initial ping and serve as pull targets while the CRDS
	// knows no peers.
	Entrypoints []*net.UDPAddr

	// AdvertiseAddr overrides the gossip socket advertised in our contact
	// info. Defaults to the bound socket address.
	AdvertiseAddr *net.UDPAddr
}

// VerifiedMessage is a decoded, sanitized, signature-checked message paired
// with the endpoint it arrived from.
type VerifiedMessage struct {
	FromEndpoint *net.UDPAddr
	Message      *protocol.Protocol
}

// PingCache gates pull requests on proven liveness of the requester. It is an
// extension point: the engine ships without one and serves every request.
type PingCache interface {
	// Check reports whether the peer at addr has recently answered a ping.
	Check(origin protocol.Pubkey, addr *net.UDPAddr) bool
}

// Engine is the core gossip engine: one UDP socket, five workers, and the
// shared state containers they coordinate around.
//
// Data flows one way through the queues. Shared mutable state is accessed
// under the explicit locks below, held only for short critical sections that
// never contain I/O. The only place two locks nest is
// drainPushQueueToCrdsTable, in the order push-queue then CRDS.
type Engine struct {
	conf   *Config
	logger *logrus.Entry

	keypair  *keys.KeyPair
	myPubkey protocol.Pubkey

	conn *net.UDPConn

	// myContactInfo is the node's own advertised record. Only the builder
	// touches it after construction; it restamps the wallclock and re-signs
	// before every push-of-self and pull request.
	myContactInfo protocol.LegacyContactInfo

	crdsLock  sync.RWMutex
	crdsTable *crds.Table

	activeSetLock sync.RWMutex
	activeSet     *crds.ActiveSet

	pushQueueLock sync.Mutex
	pushQueue     []protocol.CrdsValue

	failedPullLock   sync.Mutex
	failedPullHashes *crds.HashTimeQueue

	ingress  *channel.Channel[protocol.Packet]
	verified *channel.Channel[VerifiedMessage]
	egress   *channel.Channel[protocol.Packet]

	// pingCache, when set, gates pull requests (see PingCache).
	pingCache PingCache

	exit  atomic.Bool
	wg    sync.WaitGroup
	start time.Time
}

// NewEngine wires an engine around an already-bound UDP socket.
func NewEngine(conf *Config, keypair *keys.KeyPair, conn *net.UDPConn) *Engine {
	logger := conf.Logger
	if logger == nil {
		logger = logrus.New().WithField("prefix", "gossip")
	}

	myPubkey := protocol.PubkeyFromPublicKey(keypair.Public)

	advertise := conf.AdvertiseAddr
	if advertise == nil {
		advertise = conn.LocalAddr().(*net.UDPAddr)
	}

	e := &Engine{
		conf:     conf,
		logger:   logger.WithField("this_id", myPubkey.Short()),
		keypair:  keypair,
		myPubkey: myPubkey,
		conn:     conn,
		myContactInfo: protocol.LegacyContactInfo{
			ID:           myPubkey,
			Gossip:       protocol.SocketAddrFromUDP(advertise),
			ShredVersion: conf.ShredVersion,
		},
		crdsTable:        crds.NewTable(myPubkey),
		activeSet:        crds.NewActiveSet(),
		failedPullHashes: crds.NewHashTimeQueue(),
		ingress:          channel.New[protocol.Packet](queueCapacity),
		verified:         channel.New[VerifiedMessage](queueCapacity),
		egress:           channel.New[protocol.Packet](queueCapacity),
	}

	return e
}

// SetPingCache attaches a ping cache. Must be called before Run.
func (e *Engine) SetPingCache(pc PingCache) {
	e.pingCache = pc
}

// Pubkey returns the engine's identity.
func (e *Engine) Pubkey() protocol.Pubkey {
	return e.myPubkey
}

// Run starts the five workers and blocks until all of them have returned.
// The termination of any single worker, expected or not, sets the exit flag
// and brings the others down with it.
func (e *Engine) Run() {
	e.start = time.Now()

	e.logger.WithField("gossip", e.myContactInfo.Gossip.String()).Debug("Engine starting")

	workers := map[string]func(){
		"receiver":  e.receiver,
		"verifier":  e.verifier,
		"processor": e.processor,
		"builder":   e.builder,
		"responder": e.responder,
	}

	for name, w := range workers {
		e.wg.Add(1)
		go e.joinAndExit(name, w)
	}

	e.wg.Wait()

	e.logger.Debug("Engine stopped")
}

// RunAsync calls Run on a separate goroutine.
func (e *Engine) RunAsync() {
	go e.Run()
}

// joinAndExit runs a worker to completion and then sets the exit flag, so
// that one worker dying cascades a clean stop of the rest.
func (e *Engine) joinAndExit(name string, w func()) {
	defer e.wg.Done()
	defer e.exit.Store(true)

	w()

	e.logger.WithField("worker", name).Debug("Worker returned")
}

// Shutdown signals the workers to stop. Run returns once they all have.
func (e *Engine) Shutdown() {
	if !e.exit.Swap(true) {
		e.logger.Debug("Shutdown")
	}
}

// exiting is polled at the top of every worker loop.
func (e *Engine) exiting() bool {
	return e.exit.Load()
}

// GetStats returns engine statistics.
func (e *Engine) GetStats() map[string]string {
	e.crdsLock.RLock()
	crdsSize := e.crdsTable.Len()
	origins := e.crdsTable.NumOrigins()
	purged := e.crdsTable.Purged.Len()
	e.crdsLock.RUnlock()

	e.activeSetLock.RLock()
	activeSetSize := e.activeSet.Len()
	e.activeSetLock.RUnlock()

	e.failedPullLock.Lock()
	failedPulls := e.failedPullHashes.Len()
	e.failedPullLock.Unlock()

	return map[string]string{
		"id":             e.myPubkey.String(),
		"gossip_addr":    e.myContactInfo.Gossip.String(),
		"shred_version":  strconv.Itoa(int(e.conf.ShredVersion)),
		"crds_size":      strconv.Itoa(crdsSize),
		"crds_origins":   strconv.Itoa(origins),
		"crds_purged":    strconv.Itoa(purged),
		"active_set":     strconv.Itoa(activeSetSize),
		"failed_pulls":   strconv.Itoa(failedPulls),
		"ingress_queue":  strconv.Itoa(e.ingress.Len()),
		"verified_queue": strconv.Itoa(e.verified.Len()),
		"egress_queue":   strconv.Itoa(e.egress.Len()),
		"uptime_seconds": strconv.FormatFloat(time.Since(e.start).Seconds(), 'f', 0, 64),
	}
}

// KnownPeers returns the contact infos currently stored in the CRDS table.
func (e *Engine) KnownPeers() []protocol.LegacyContactInfo {
	e.crdsLock.RLock()
	defer e.crdsLock.RUnlock()

	var out []protocol.LegacyContactInfo
	for _, v := range e.crdsTable.GetContactInfos(nil) {
		if ci := v.Value.ContactInfo(); ci != nil {
			out = append(out, *ci)
		}
	}
	return out
}

func (e *Engine) logStats() {
	stats := e.GetStats()

	e.logger.WithFields(logrus.Fields{
		"crds_size":    stats["crds_size"],
		"crds_origins": stats["crds_origins"],
		"active_set":   stats["active_set"],
		"failed_pulls": stats["failed_pulls"],
		"ingress":      stats["ingress_queue"],
		"egress":       stats["egress_queue"],
	}).Debug("Stats")
}

// nowMillis is the engine's wallclock: milliseconds since the UNIX epoch.
func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

package main

import (
	"errors"
	"flag"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

var (
	listenPort int
	targetAddr string
	dropRate   float64
	seed       int64
	verbose    bool
)

func init() {
	flag.IntVar(&listenPort, "listen", 3030, "UDP port the initiator sends to")
	flag.StringVar(&targetAddr, "target", "localhost:3031", "address of the listening endpoint")
	flag.Float64Var(&dropRate, "droprate", 0.1, "datagram drop rate (0.0-1.0)")
	flag.Int64Var(&seed, "seed", 0, "random seed, 0 derives one from the clock")
	flag.BoolVar(&verbose, "v", false, "log every relayed datagram")
}

// gateway relays datagrams between one initiator and one target while
// discarding a random share of them in both directions. Both endpoints keep
// their retransmission behavior observable under reproducible loss.
type gateway struct {
	clientSide *net.UDPConn
	serverSide *net.UDPConn
	log        zerolog.Logger

	mu     sync.Mutex
	client *net.UDPAddr
}

func main() {
	flag.Parse()
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	if dropRate < 0 || dropRate >= 1 {
		logger.Fatal().Float64("droprate", dropRate).Msg("drop rate must be in [0.0, 1.0)")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	clientSide, err := net.ListenUDP("udp4", &net.UDPAddr{Port: listenPort})
	if err != nil {
		logger.Fatal().Err(err).Int("listen", listenPort).Msg("binding gateway port failed")
	}
	target, err := net.ResolveUDPAddr("udp4", targetAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("target", targetAddr).Msg("resolving target failed")
	}
	serverSide, err := net.DialUDP("udp4", nil, target)
	if err != nil {
		logger.Fatal().Err(err).Str("target", targetAddr).Msg("dialing target failed")
	}

	logger.Info().
		Int("listen", listenPort).
		Str("target", targetAddr).
		Float64("droprate", dropRate).
		Int64("seed", seed).
		Msg("loss gateway started")

	gw := &gateway{clientSide: clientSide, serverSide: serverSide, log: logger}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gw.pumpTowardsTarget(rand.New(rand.NewSource(seed)))
	}()
	go func() {
		defer wg.Done()
		gw.pumpTowardsClient(rand.New(rand.NewSource(seed + 1)))
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	logger.Info().Msg("shutting down")
	_ = clientSide.Close()
	_ = serverSide.Close()
	wg.Wait()
}

func (gw *gateway) rememberClient(address *net.UDPAddr) {
	gw.mu.Lock()
	gw.client = address
	gw.mu.Unlock()
}

func (gw *gateway) clientAddress() *net.UDPAddr {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.client
}

func (gw *gateway) pumpTowardsTarget(rng *rand.Rand) {
	buffer := make([]byte, 64*1024)
	for {
		n, fromAddress, err := gw.clientSide.ReadFromUDP(buffer)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				gw.log.Error().Err(err).Msg("client side read failed")
			}
			return
		}
		gw.rememberClient(fromAddress)
		if rng.Float64() < dropRate {
			gw.log.Debug().Int("len", n).Str("direction", "to-target").Msg("dropped")
			continue
		}
		if _, err := gw.serverSide.Write(buffer[:n]); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP refusal means the target is not up yet; the endpoints
			// retransmit through it.
			if !errors.Is(err, syscall.ECONNREFUSED) {
				gw.log.Error().Err(err).Msg("target side write failed")
			}
			continue
		}
		gw.log.Debug().Int("len", n).Str("direction", "to-target").Msg("relayed")
	}
}

func (gw *gateway) pumpTowardsClient(rng *rand.Rand) {
	buffer := make([]byte, 64*1024)
	for {
		n, err := gw.serverSide.Read(buffer)
		if err != nil {
			if errors.Is(err, syscall.ECONNREFUSED) {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				gw.log.Error().Err(err).Msg("target side read failed")
			}
			return
		}
		client := gw.clientAddress()
		if client == nil {
			continue
		}
		if rng.Float64() < dropRate {
			gw.log.Debug().Int("len", n).Str("direction", "to-client").Msg("dropped")
			continue
		}
		if _, err := gw.clientSide.WriteToUDP(buffer[:n], client); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			gw.log.Error().Err(err).Msg("client side write failed")
			continue
		}
		gw.log.Debug().Int("len", n).Str("direction", "to-client").Msg("relayed")
	}
}

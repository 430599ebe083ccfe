package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	rdt "github.com/rdtlab/rdt-go"
)

var (
	configPath string
	chunkSize  int
	verbose    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.IntVar(&chunkSize, "chunk", rdt.MaxPayloadSize, "payload bytes per segment")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
}

func main() {
	flag.Parse()
	logger := newLogger(verbose)
	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [-config file] [-chunk n] [-v] <host> <port>\n", os.Args[0])
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(1))
	if err != nil || port < 1 || port > 65535 {
		logger.Fatal().Str("port", flag.Arg(1)).Msg("invalid port")
	}
	if chunkSize < 1 || chunkSize > rdt.MaxPayloadSize {
		logger.Fatal().Int("chunk", chunkSize).Int("max", rdt.MaxPayloadSize).Msg("invalid chunk size")
	}
	config, err := resolveConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading config failed")
	}
	config.Logger = &logger

	conn, err := rdt.Connect(flag.Arg(0), port, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect failed")
	}

	reader := bufio.NewReader(os.Stdin)
	buffer := make([]byte, chunkSize)
	var bytesSent int64
	segments := 0
	started := time.Now()
	for {
		n, readErr := io.ReadFull(reader, buffer)
		if n > 0 {
			if err := conn.Send(buffer[:n]); err != nil {
				logger.Fatal().Err(err).Msg("send failed")
			}
			bytesSent += int64(n)
			segments++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			logger.Fatal().Err(readErr).Msg("reading stdin failed")
		}
	}
	logger.Info().
		Int64("bytes", bytesSent).
		Int("segments", segments).
		Dur("elapsed", time.Since(started)).
		Dur("rtt", conn.EstimatedRTT()).
		Msg("transfer complete")
	if err := conn.Close(); err != nil {
		logger.Error().Err(err).Msg("close failed")
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
}

func resolveConfig(path string) (*rdt.Config, error) {
	if path == "" {
		return rdt.DefaultConfig(), nil
	}
	return rdt.LoadConfig(path)
}

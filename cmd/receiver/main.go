package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	rdt "github.com/rdtlab/rdt-go"
)

var (
	configPath string
	verbose    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
}

func main() {
	flag.Parse()
	logger := newLogger(verbose)
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-config file] [-v] <port>\n", os.Args[0])
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port < 1 || port > 65535 {
		logger.Fatal().Str("port", flag.Arg(0)).Msg("invalid port")
	}
	config, err := resolveConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading config failed")
	}
	config.Logger = &logger

	conn, err := rdt.Accept(port, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("accept failed")
	}

	writer := bufio.NewWriter(os.Stdout)
	var bytesReceived int64
	segments := 0
	for {
		payload, err := conn.Receive()
		if err != nil {
			logger.Fatal().Err(err).Msg("receive failed")
		}
		if payload == nil {
			break
		}
		if _, err := writer.Write(payload); err != nil {
			logger.Fatal().Err(err).Msg("writing stdout failed")
		}
		bytesReceived += int64(len(payload))
		segments++
	}
	if err := writer.Flush(); err != nil {
		logger.Fatal().Err(err).Msg("writing stdout failed")
	}
	logger.Info().
		Int64("bytes", bytesReceived).
		Int("segments", segments).
		Msg("peer closed the connection")
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

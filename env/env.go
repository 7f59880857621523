package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Environment carries process-level overrides. Everything is optional;
// zero values mean "use the built-in default".
type Environment struct {
	PulseServer string   // PULSE_SERVER, empty picks the local default
	ConfigPath  string   // MIXER_CONFIG
	SerialBaud  int      // MIXER_BAUD
	VendorIDs   []string // MIXER_VENDOR_IDS, comma separated USB VIDs
}

func LoadEnv(logger *zap.Logger) *Environment {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env file", zap.Error(err))
	}
	e := &Environment{}
	e.PulseServer = os.Getenv("PULSE_SERVER")
	e.ConfigPath = os.Getenv("MIXER_CONFIG")
	if baud, ok := os.LookupEnv("MIXER_BAUD"); ok {
		b, err := strconv.Atoi(baud)
		if err != nil {
			logger.Fatal("failed to parse MIXER_BAUD", zap.Error(err))
		}
		e.SerialBaud = b
	}
	if vids, ok := os.LookupEnv("MIXER_VENDOR_IDS"); ok {
		for _, v := range strings.Split(vids, ",") {
			if v = strings.TrimSpace(v); v != "" {
				e.VendorIDs = append(e.VendorIDs, strings.ToUpper(v))
			}
		}
	}
	return e
}

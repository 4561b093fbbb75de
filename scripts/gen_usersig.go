// Command gen_usersig mints a UserSig from the credentials in a config file
// and prints it with its expiry, for driving other tools or checking what a
// session would send.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/usersig"
)

type sigConfig struct {
	AppID     int64  `mapstructure:"app_id"`
	SDKAppID  int64  `mapstructure:"sdk_app_id"`
	SecretKey string `mapstructure:"secret_key"`
}

func main() {
	configPath := flag.String("config", "", "")
	ttl := flag.Duration("ttl", usersig.DefaultTTL, "")
	flag.Parse()
	if *configPath == "" {
		fmt.Println("usage: gen_usersig -config=path/to/config.yaml [-ttl=24h]")
		os.Exit(1)
	}
	cfg, err := loadSigConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	if env := os.Getenv("TRTC_ASR_SECRET_KEY"); env != "" {
		cfg.SecretKey = env
	}

	cred := credential.New(cfg.AppID, cfg.SDKAppID, cfg.SecretKey)
	tok, err := usersig.New(cred, time.Now(), *ttl, usersig.Nonce())
	if err != nil {
		fmt.Println("sign error:", err)
		os.Exit(1)
	}

	fmt.Println("user_sig:", tok.Signature)
	fmt.Println("nonce:", tok.Nonce)
	fmt.Println("expires_at:", time.Unix(tok.ExpiresAt, 0).UTC().Format(time.RFC3339))
	fmt.Println("header X-TRTC-SdkAppId:", cfg.SDKAppID)
	fmt.Println("header X-TRTC-UserSig:", tok.Signature)
}

func loadSigConfig(path string) (sigConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return sigConfig{}, err
	}
	var cfg sigConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return sigConfig{}, err
	}
	return cfg, nil
}

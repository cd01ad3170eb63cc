package config

import "time"

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPartnerTTL     = 5 * time.Minute
)

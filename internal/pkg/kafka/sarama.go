package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const (
	clientIDPrefix = "tavern-"
	netTimeout     = 10 * time.Second
)

// newClientConfig returns the version and network timeouts shared by the
// producer and the consumer group.
func newClientConfig(role string) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = clientIDPrefix + role
	c.Version = sarama.V2_6_0_0

	c.Net.DialTimeout = netTimeout
	c.Net.ReadTimeout = netTimeout
	c.Net.WriteTimeout = netTimeout
	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond
	c.Metadata.Timeout = netTimeout
	return c
}

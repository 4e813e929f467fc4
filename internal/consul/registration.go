package consul

import (
	"fmt"
	"net"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Config represents service discovery configuration. Registration is
// optional; single-node deployments run without Consul.
type Config struct {
	Enabled             bool          `yaml:"enabled"`
	Address             string        `yaml:"address"`
	ServiceName         string        `yaml:"service_name"`
	ServiceTags         []string      `yaml:"service_tags"`
	HealthCheckPath     string        `yaml:"health_check_path"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
}

// Connect establishes a connection to the Consul agent and pings it.
func Connect(address string, logger *zap.Logger) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = address
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect/ping consul agent: %w", err)
	}
	logger.Info("Connected to Consul agent", zap.String("address", address))
	return client, nil
}

// RegisterService registers this instance with Consul, including an HTTP
// health check, and returns the instance's service id for deregistration.
func RegisterService(client *consulapi.Client, cfg Config, listenAddr string, logger *zap.Logger) (string, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		portStr = listenAddr
		host = ""
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	if cfg.HealthCheckPath == "" {
		cfg.HealthCheckPath = "/health"
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 10 * time.Second
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = 2 * time.Second
	}

	serviceID := fmt.Sprintf("%s-%d", cfg.ServiceName, port)
	registration := &consulapi.AgentServiceRegistration{
		ID:      serviceID,
		Name:    cfg.ServiceName,
		Port:    port,
		Address: host,
		Tags:    cfg.ServiceTags,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d%s", checkAddress(host), port, cfg.HealthCheckPath),
			Interval:                       cfg.HealthCheckInterval.String(),
			Timeout:                        cfg.HealthCheckTimeout.String(),
			DeregisterCriticalServiceAfter: "1m",
		},
	}

	if err := client.Agent().ServiceRegister(registration); err != nil {
		return "", fmt.Errorf("failed to register service %q with consul: %w", cfg.ServiceName, err)
	}

	logger.Info("Service registered with Consul",
		zap.String("service_id", serviceID),
		zap.String("service_name", cfg.ServiceName),
	)
	return serviceID, nil
}

// DeregisterService removes this instance from Consul during shutdown.
func DeregisterService(client *consulapi.Client, serviceID string, logger *zap.Logger) {
	if err := client.Agent().ServiceDeregister(serviceID); err != nil {
		logger.Warn("Failed to deregister service from Consul",
			zap.String("service_id", serviceID), zap.Error(err))
		return
	}
	logger.Info("Service deregistered from Consul", zap.String("service_id", serviceID))
}

// checkAddress picks the address the agent should probe. Unspecified bind
// addresses resolve to loopback.
func checkAddress(serviceAddress string) string {
	if serviceAddress == "" || serviceAddress == "0.0.0.0" {
		return "127.0.0.1"
	}
	return serviceAddress
}

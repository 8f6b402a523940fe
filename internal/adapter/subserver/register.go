package subserver

import "github.com/guildhost/guildhost/internal/port/controlplane"

func init() {
	controlplane.Register(dialectName, func(settings controlplane.Settings) (controlplane.Client, error) {
		return NewClient(settings), nil
	})
}

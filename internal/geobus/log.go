// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import "log/slog"

func slogProvider(p Provider) slog.Attr {
	return slog.String("provider", p.Name())
}

func slogProviders(providers []Provider) slog.Attr {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return slog.Any("providers", names)
}

func slogAccuracy(accuracy float64) slog.Attr {
	return slog.Float64("accuracy", accuracy)
}

// wrapf attaches context and a call-site stack trace via
// github.com/pkg/errors to an error that Channel.Send or Channel.Flush
// returns, so a log site far from the actual failure still shows where
// it originated.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"github.com/pkg/errors"

	"github.com/ripc-core/rtmd/rtderr"
)

func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

func recordErr(err error) {
	if err == nil {
		return
	}
	var e *rtderr.Error
	if errors.As(err, &e) {
		MetricChannelErrors.WithLabelValues(e.Category.String()).Inc()
		return
	}
	MetricChannelErrors.WithLabelValues(rtderr.Failure.String()).Inc()
}

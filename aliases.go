package ldbridge

import (
	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/util"
)

type MethodCall = api.MethodCall
type MethodInvoker = api.MethodInvoker
type Result = api.Result
type ResultFuture = api.ResultFuture
type MethodError = api.MethodError
type ClientEvent = api.ClientEvent
type ConnectionInformation = api.ConnectionInformation
type Logger = util.Logger
type DiscardLogger = util.DiscardLogger

func SetLogger(log Logger) { util.SetLogger(log) }

package rpccontract

const (
	ServiceName = "yolotuner.v1.TunerHub"
)

const (
	MethodGetHealth     = "/" + ServiceName + "/GetHealth"
	MethodGetTagCounts  = "/" + ServiceName + "/GetTagCounts"
	MethodCountSamples  = "/" + ServiceName + "/CountSamples"
	MethodListTargets   = "/" + ServiceName + "/ListTargets"
	MethodSubmitJob     = "/" + ServiceName + "/SubmitJob"
	MethodGetJob        = "/" + ServiceName + "/GetJob"
	MethodListJobs      = "/" + ServiceName + "/ListJobs"
	MethodListJobEvents = "/" + ServiceName + "/ListJobEvents"
	MethodAddSamples    = "/" + ServiceName + "/AddSamples"
	MethodTagSamples    = "/" + ServiceName + "/TagSamples"
)

var WriteMethods = map[string]struct{}{
	MethodSubmitJob:  {},
	MethodAddSamples: {},
	MethodTagSamples: {},
}

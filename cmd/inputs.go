package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inference-sim/kvcache-calc/kvcache"
	"github.com/inference-sim/kvcache-calc/kvcache/preset"
	"github.com/inference-sim/kvcache-calc/kvcache/report"
)

// defaultPreset is used when no model source is given at all.
const defaultPreset = "mistral-24b"

var (
	// Input sources
	presetName        string // Built-in or --defaults preset name
	defaultsFilePath  string // Optional defaults.yaml replacing the embedded one
	scenarioPath      string // Scenario YAML file
	hfModel           string // HuggingFace model id, e.g. meta-llama/Llama-3.1-8B
	modelConfigFolder string // Folder containing config.json, skips HF resolution

	// Model fields
	numLayers    int
	numKVHeads   int
	headDim      int
	numParams    float64
	modelDtype   string
	kvcacheDtype string

	// System and traffic fields
	availableMemoryGB          float64
	avgConversationLength      float64
	conversationArrivalRate    float64
	withinConversationInterval float64
	avgSequenceLength          float64

	// Heuristic overrides
	overheadFactor   float64
	computeReduction float64

	outputFormat string // table, json or yaml
)

// registerInputFlags adds the flags shared by every calculating command.
func registerInputFlags(fs *pflag.FlagSet) {
	fs.StringVar(&presetName, "preset", "", "Model preset name (see `kvcache-calc presets`)")
	fs.StringVar(&defaultsFilePath, "defaults", "", "Path to a defaults.yaml replacing the built-in presets")
	fs.StringVar(&scenarioPath, "scenario", "", "Path to a scenario YAML file")
	fs.StringVar(&hfModel, "hf-model", "", "HuggingFace model id whose config.json defines the model")
	fs.StringVar(&modelConfigFolder, "model-config-folder", "", "Folder containing config.json (overrides --hf-model resolution)")

	fs.IntVar(&numLayers, "num-layers", 0, "Number of transformer layers")
	fs.IntVar(&numKVHeads, "num-kv-heads", 0, "Number of key/value heads")
	fs.IntVar(&headDim, "head-dim", 0, "Dimension of each attention head")
	fs.Float64Var(&numParams, "num-params", 0, "Total parameter count (raw, e.g. 24e9)")
	fs.StringVar(&modelDtype, "model-dtype", "", fmt.Sprintf("Model weight dtype %v", kvcache.ValidModelDtypes()))
	fs.StringVar(&kvcacheDtype, "kvcache-dtype", "", fmt.Sprintf("KV cache dtype %v", kvcache.ValidKVCacheDtypes()))

	fs.Float64Var(&availableMemoryGB, "memory", 0, "Available accelerator memory in GB")
	fs.Float64Var(&avgConversationLength, "conversation-length", 0, "Average turns per conversation")
	fs.Float64Var(&conversationArrivalRate, "arrival-rate", 0, "New conversations per second")
	fs.Float64Var(&withinConversationInterval, "turn-interval", 0, "Seconds between turns of a conversation")
	fs.Float64Var(&avgSequenceLength, "sequence-length", 0, "Average tokens per turn")

	fs.Float64Var(&overheadFactor, "overhead-factor", kvcache.DefaultRuntimeOverheadFactor, "Heuristic multiplier on weight memory for runtime overhead")
	fs.Float64Var(&computeReduction, "compute-reduction", kvcache.DefaultCacheHitComputeReduction, "Heuristic fraction of compute saved per cache hit")

	fs.StringVarP(&outputFormat, "output", "o", string(report.FormatTable), "Output format (table, json, yaml)")
}

// loadDefaults returns the --defaults file or the embedded presets.
func loadDefaults() (*preset.Defaults, error) {
	if defaultsFilePath == "" {
		return preset.Builtin()
	}
	return preset.LoadDefaults(defaultsFilePath)
}

// resolveInputs layers the input sources in increasing precedence:
// defaults, scenario file, --preset, --hf-model, then explicit field flags.
func resolveInputs(cmd *cobra.Command) (preset.Inputs, kvcache.Estimator, error) {
	d, err := loadDefaults()
	if err != nil {
		return preset.Inputs{}, kvcache.Estimator{}, err
	}

	in, err := d.Inputs("")
	if err != nil {
		return preset.Inputs{}, kvcache.Estimator{}, err
	}
	h := kvcache.DefaultHeuristics()
	hasModel := false

	if scenarioPath != "" {
		s, err := preset.LoadScenario(scenarioPath)
		if err != nil {
			return preset.Inputs{}, kvcache.Estimator{}, err
		}
		if in, err = s.Resolve(d); err != nil {
			return preset.Inputs{}, kvcache.Estimator{}, err
		}
		s.Heuristics.ApplyTo(&h)
		hasModel = s.Preset != "" || s.Model != (preset.ModelOverrides{})
	}

	name := presetName
	if name == "" && !hasModel && hfModel == "" && modelConfigFolder == "" {
		name = defaultPreset
		logrus.Infof("No model given; using preset %s", name)
	}
	if name != "" {
		p, err := d.Lookup(name)
		if err != nil {
			return preset.Inputs{}, kvcache.Estimator{}, err
		}
		in = preset.Apply(p, in)
	}

	if hfModel != "" || modelConfigFolder != "" {
		mc, err := loadHFModel(hfModel, modelConfigFolder)
		if err != nil {
			return preset.Inputs{}, kvcache.Estimator{}, err
		}
		in.Model = mc
	}

	applyFieldFlags(cmd.Flags(), &in)

	if cmd.Flags().Changed("overhead-factor") {
		h.RuntimeOverheadFactor = overheadFactor
	}
	if cmd.Flags().Changed("compute-reduction") {
		h.CacheHitComputeReduction = computeReduction
	}
	est, err := kvcache.NewEstimator(h)
	if err != nil {
		return preset.Inputs{}, kvcache.Estimator{}, err
	}

	logrus.Debugf("Resolved inputs: model=%+v system=%+v conversation=%+v heuristics=%+v",
		in.Model, in.System, in.Conversation, h)
	return in, est, nil
}

// applyFieldFlags overrides individual fields with flags the user set.
func applyFieldFlags(fs *pflag.FlagSet, in *preset.Inputs) {
	if fs.Changed("num-layers") {
		in.Model.NumLayers = numLayers
	}
	if fs.Changed("num-kv-heads") {
		in.Model.NumKVHeads = numKVHeads
	}
	if fs.Changed("head-dim") {
		in.Model.HeadDim = headDim
	}
	if fs.Changed("num-params") {
		in.Model.NumParams = numParams
	}
	if fs.Changed("model-dtype") {
		in.Model.ModelDtype = kvcache.Dtype(modelDtype)
	}
	if fs.Changed("kvcache-dtype") {
		in.Model.KVCacheDtype = kvcache.Dtype(kvcacheDtype)
	}
	if fs.Changed("memory") {
		in.System.AvailableMemoryGB = availableMemoryGB
	}
	if fs.Changed("conversation-length") {
		in.Conversation.AvgConversationLength = avgConversationLength
	}
	if fs.Changed("arrival-rate") {
		in.Conversation.ConversationArrivalRate = conversationArrivalRate
	}
	if fs.Changed("turn-interval") {
		in.Conversation.WithinConversationInterval = withinConversationInterval
	}
	if fs.Changed("sequence-length") {
		in.Conversation.AvgSequenceLength = avgSequenceLength
	}
}

// calculation is the structured output of calculate and watch.
type calculation struct {
	Model        kvcache.ModelConfig         `json:"model" yaml:"model"`
	System       kvcache.SystemConfig        `json:"system" yaml:"system"`
	Conversation kvcache.ConversationPattern `json:"conversation" yaml:"conversation"`
	Heuristics   kvcache.Heuristics          `json:"heuristics" yaml:"heuristics"`
	Metrics      kvcache.Metrics             `json:"metrics" yaml:"metrics"`
}

// runCalculation evaluates in and writes the result in the given format.
func runCalculation(w io.Writer, format report.Format, in preset.Inputs, est kvcache.Estimator) error {
	m, err := est.DetailedMetrics(in.Model, in.System, in.Conversation)
	if err != nil {
		return err
	}
	if format != report.FormatTable {
		return report.Write(w, format, calculation{
			Model: in.Model, System: in.System, Conversation: in.Conversation,
			Heuristics: est.Heuristics(), Metrics: m,
		})
	}
	if m.Regime == kvcache.RegimeNoCapacity {
		logrus.Warnf("Model needs %.2f GB but only %.2f GB is available; nothing can be cached",
			m.ModelMemoryGB, in.System.AvailableMemoryGB)
	}
	report.MetricsTable(w, m, est.Heuristics())
	return nil
}

package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/cardvision/data/db/cards.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/cardvision/data/indices/bleve"
	}
	if cfg.Images.BaseDir == "" {
		cfg.Images.BaseDir = "/usr/local/var/cardvision/data/images"
	}
	if cfg.Images.RemoteBaseURL == "" {
		cfg.Images.RemoteBaseURL = "https://images.ygoprodeck.com/images"
	}
	if cfg.Images.DownloadTimeoutSeconds == 0 {
		cfg.Images.DownloadTimeoutSeconds = 15
	}
	if cfg.Encoder.FeatureModelPath == "" {
		cfg.Encoder.FeatureModelPath = "/usr/local/var/cardvision/data/models/mobilenetv3-feature.onnx"
	}
	if cfg.Encoder.FeatureDimensions == 0 {
		cfg.Encoder.FeatureDimensions = 512
	}
	if cfg.Encoder.ConceptModelPath == "" {
		cfg.Encoder.ConceptModelPath = "/usr/local/var/cardvision/data/models/clip-image.onnx"
	}
	if cfg.Encoder.ConceptAnchorPath == "" {
		cfg.Encoder.ConceptAnchorPath = "/usr/local/var/cardvision/data/models/concept-anchors.bin"
	}
	if cfg.Encoder.InputSize == 0 {
		cfg.Encoder.InputSize = 224
	}
	if cfg.Embed.BatchSize == 0 {
		cfg.Embed.BatchSize = 100
	}
	if cfg.Embed.Concurrency == 0 {
		cfg.Embed.Concurrency = 4
	}
	if cfg.Embed.MaxWorkers == 0 {
		cfg.Embed.MaxWorkers = 2
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.CorpusTTLSeconds == 0 {
		cfg.Search.CorpusTTLSeconds = 30
	}
}

package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown files are not indexed. */
	ResourceTypeNone ResourceType = iota
	/** @brief Text resource type. */
	ResourceTypeText
	/** @brief Compiled SPIR-V shader stage. */
	ResourceTypeShader
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeText:
		return "text"
	case ResourceTypeShader:
		return "shader"
	default:
		return "none"
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The resource type. */
	Type ResourceType
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data []byte
}

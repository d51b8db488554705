package txchain

var RenameDefinition = renameDefinition
